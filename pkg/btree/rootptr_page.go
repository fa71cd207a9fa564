package btree

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// RootPtrPageSize is fixed and much smaller than the tree's ordinary
// page size: it holds only three int32s (root page number, root page
// category, first free-list header page number); on a freshly created
// file both page numbers are -1 to mean "none yet" and the category is
// Leaf.
const RootPtrPageSize = 12

// RootPtrPage is always page 0 of a BTreeFile: the single mutable
// pointer every reader must follow to find the current root, so that
// replacing the root (promotion after the old root empties, or
// creating the very first leaf) never has to rewrite any other page's
// parent pointer.
type RootPtrPage struct {
	id PageID

	rootPageNo   int32
	rootCategory Category
	headerPageNo int32

	dirty    bool
	dirtyTid uint64
}

func NewRootPtrPage(id PageID, data []byte) (*RootPtrPage, error) {
	if len(data) < RootPtrPageSize {
		return nil, errors.Wrapf(dberrors.IoFailure, "root ptr page %s: truncated, got %d bytes", id, len(data))
	}
	return &RootPtrPage{
		id:           id,
		rootPageNo:   int32(binary.BigEndian.Uint32(data[0:4])),
		rootCategory: Category(int32(binary.BigEndian.Uint32(data[4:8]))),
		headerPageNo: int32(binary.BigEndian.Uint32(data[8:12])),
	}, nil
}

// EmptyRootPtrPageData returns the bytes of a RootPtrPage naming no
// root and no header pages yet.
func EmptyRootPtrPageData() []byte {
	buf := make([]byte, RootPtrPageSize)
	binary.BigEndian.PutUint32(buf[0:4], ^uint32(0))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(Leaf)))
	binary.BigEndian.PutUint32(buf[8:12], ^uint32(0))
	return buf
}

func (p *RootPtrPage) ID() tuple.PageID { return p.id }

// BTreeID returns the same identity typed concretely, for code within
// this package that needs PageID's Category()/PageNo() accessors.
func (p *RootPtrPage) BTreeID() PageID { return p.id }

func (p *RootPtrPage) HasRoot() bool { return p.rootPageNo >= 0 }

func (p *RootPtrPage) RootID() PageID {
	return NewPageID(p.id.TableID(), int(p.rootPageNo), p.rootCategory)
}

func (p *RootPtrPage) SetRootID(id PageID) {
	p.rootPageNo = int32(id.PageNo())
	p.rootCategory = id.Category()
}

func (p *RootPtrPage) HasHeaderPage() bool { return p.headerPageNo >= 0 }

func (p *RootPtrPage) HeaderPageID() PageID {
	return NewPageID(p.id.TableID(), int(p.headerPageNo), Header)
}

func (p *RootPtrPage) SetHeaderPageNo(pageNo int) {
	p.headerPageNo = int32(pageNo)
}

func (p *RootPtrPage) Bytes() []byte {
	buf := make([]byte, RootPtrPageSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.rootPageNo))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(p.rootCategory)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(p.headerPageNo))
	return buf
}

func (p *RootPtrPage) IsDirty() bool { return p.dirty }

func (p *RootPtrPage) MarkDirty(dirty bool, tid uint64) {
	p.dirty = dirty
	if dirty {
		p.dirtyTid = tid
	} else {
		p.dirtyTid = 0
	}
}

func (p *RootPtrPage) DirtyTxn() (uint64, bool) {
	if !p.dirty {
		return 0, false
	}
	return p.dirtyTid, true
}
