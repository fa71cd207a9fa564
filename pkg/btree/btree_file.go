package btree

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sasha-s/go-deadlock"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

// BTreeFile is the on-disk backing store for one B+-tree index: page 0
// is always a RootPtrPage naming the current root and the head of the
// free-page header chain; every other page is a Header, Internal, or
// Leaf page at a fixed pageSize. Structural mutation (split, steal,
// merge) is done directly against this file's own I/O rather than
// through a shared buffer pool — pkg/engine layers locking on top for
// the leaf-level tuple operations callers actually issue.
type BTreeFile struct {
	mu deadlock.Mutex

	path     string
	file     *os.File
	tableID  uint64
	desc     tuple.TupleDesc
	keyField int
	pageSize int
}

// OpenBTreeFile opens (creating and bootstrapping if necessary) the
// file at path as a B+-tree index keyed on keyField.
func OpenBTreeFile(path string, keyField int, desc tuple.TupleDesc) (*BTreeFile, error) {
	tableID, err := storage.TableID(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(dberrors.IoFailure, "open btree file %q: %v", path, err)
	}
	bt := &BTreeFile{
		path:     path,
		file:     f,
		tableID:  tableID,
		desc:     desc,
		keyField: keyField,
		pageSize: storage.PageSize(),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat btree file")
	}
	if info.Size() == 0 {
		if _, err := f.WriteAt(EmptyRootPtrPageData(), 0); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "bootstrap btree file root pointer")
		}
	}
	return bt, nil
}

func (bt *BTreeFile) TableID() uint64            { return bt.tableID }
func (bt *BTreeFile) TupleDesc() tuple.TupleDesc { return bt.desc }
func (bt *BTreeFile) KeyField() int              { return bt.keyField }

func (bt *BTreeFile) keyType() tuple.FieldType {
	t, _ := bt.desc.FieldType(bt.keyField)
	return t
}

func (bt *BTreeFile) keyMaxLen() int {
	fd, _ := bt.desc.Field(bt.keyField)
	return fd.StringMaxLen
}

// pageOffset returns the byte offset of an ordinary (non-root-ptr)
// page with the given page number; page numbers for ordinary pages
// start at 1, since page 0 is always the root pointer.
func (bt *BTreeFile) pageOffset(pageNo int) int64 {
	return int64(RootPtrPageSize) + int64(pageNo-1)*int64(bt.pageSize)
}

// NumPages is the number of ordinary (non-root-ptr) pages currently
// allocated in the file, whether or not they are all in use.
func (bt *BTreeFile) NumPages() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.numPagesLocked()
}

func (bt *BTreeFile) numPagesLocked() int {
	info, err := bt.file.Stat()
	if err != nil {
		return 0
	}
	size := info.Size() - int64(RootPtrPageSize)
	if size <= 0 {
		return 0
	}
	return int(size / int64(bt.pageSize))
}

var errUnknownCategory = errors.New("btree: unknown page category")

func (bt *BTreeFile) ReadPage(pid tuple.PageID) (storage.Page, error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bpid, ok := pid.(PageID)
	if !ok {
		return nil, errors.Newf("btree: page id %s is not a btree.PageID", pid)
	}
	p, err := bt.readPageLocked(bpid)
	if err != nil {
		return nil, errors.Wrapf(dberrors.IoFailure, "read page %s: %v", bpid, err)
	}
	return p, nil
}

func (bt *BTreeFile) WritePage(p storage.Page) error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.writePageLocked(p)
}

func (bt *BTreeFile) writePageLocked(p storage.Page) error {
	bpid := p.ID().(PageID)
	if bpid.Category() == RootPtr {
		_, err := bt.file.WriteAt(p.Bytes(), 0)
		return errors.Wrap(err, "write root ptr page")
	}

	need := bt.pageOffset(bpid.PageNo()) + int64(bt.pageSize)
	info, err := bt.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat btree file")
	}
	if info.Size() < need {
		if err := bt.file.Truncate(need); err != nil {
			return errors.Wrapf(dberrors.IoFailure, "grow btree file: %v", err)
		}
	}
	if _, err := bt.file.WriteAt(p.Bytes(), bt.pageOffset(bpid.PageNo())); err != nil {
		return errors.Wrapf(dberrors.IoFailure, "write page %s: %v", bpid, err)
	}
	return nil
}

func (bt *BTreeFile) Close() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return errors.Wrap(bt.file.Close(), "close btree file")
}
