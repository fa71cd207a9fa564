package storage

import (
	"os"

	"github.com/cockroachdb/errors"
	mmap "github.com/edsrzf/mmap-go"
	"github.com/sasha-s/go-deadlock"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// HeapFile is the on-disk backing store for one table: a sequence of
// fixed PageSize() pages, read and written through a memory-mapped
// view of the underlying file. The mutex here is a latch guarding the
// Go-level struct and its mapping against concurrent I/O from
// different goroutines; it is unrelated to the page-level S/X locking
// a transaction acquires through pkg/txn before it is allowed to touch
// a page's contents at all.
type HeapFile struct {
	mu deadlock.Mutex

	path    string
	file    *os.File
	tableID uint64
	desc    tuple.TupleDesc

	mm       mmap.MMap
	numPages int
}

// OpenHeapFile opens (creating if necessary) the file at path as a
// HeapFile for tuples of the given schema.
func OpenHeapFile(path string, desc tuple.TupleDesc) (*HeapFile, error) {
	tableID, err := TableID(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(dberrors.IoFailure, "open heap file %q: %v", path, err)
	}

	hf := &HeapFile{path: path, file: f, tableID: tableID, desc: desc}
	if err := hf.remapLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return hf, nil
}

func (f *HeapFile) Path() string             { return f.path }
func (f *HeapFile) TableID() uint64          { return f.tableID }
func (f *HeapFile) TupleDesc() tuple.TupleDesc { return f.desc }

// remapLocked refreshes numPages and the mmap view from the current
// file size. Callers must hold f.mu.
func (f *HeapFile) remapLocked() error {
	if f.mm != nil {
		if err := f.mm.Unmap(); err != nil {
			return errors.Wrapf(dberrors.IoFailure, "unmap heap file %q: %v", f.path, err)
		}
		f.mm = nil
	}

	info, err := f.file.Stat()
	if err != nil {
		return errors.Wrapf(dberrors.IoFailure, "stat heap file %q: %v", f.path, err)
	}

	pageSize := int64(PageSize())
	f.numPages = int((info.Size() + pageSize - 1) / pageSize)
	if info.Size() == 0 {
		return nil
	}

	m, err := mmap.Map(f.file, mmap.RDWR, 0)
	if err != nil {
		return errors.Wrapf(dberrors.IoFailure, "mmap heap file %q: %v", f.path, err)
	}
	f.mm = m
	return nil
}

// NumPages is the current page count, including any pages only
// implied by a virtual read past the current end of file.
func (f *HeapFile) NumPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// ReadPage returns the page at pid.PageNo(). A page number equal to
// NumPages() synthesizes an all-zero page and extends NumPages to
// cover it; this is the "virtual one-past-end page" that lets an
// insert scan probe one slot beyond the current file without a
// separate allocate call.
func (f *HeapFile) ReadPage(pid tuple.PageID) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pid.TableID() != f.tableID {
		return nil, errors.Wrapf(dberrors.WrongPage, "page %s does not belong to table %d", pid, f.tableID)
	}

	hpid := NewHeapPageID(pid.TableID(), pid.PageNo())
	pageNo := pid.PageNo()
	if pageNo < 0 || pageNo > f.numPages {
		return nil, errors.Wrapf(dberrors.NotFound, "heap file %q has %d pages, wanted page %d", f.path, f.numPages, pageNo)
	}

	if pageNo == f.numPages {
		f.numPages++
		return NewHeapPage(hpid, f.desc, EmptyHeapPageData())
	}

	pageSize := PageSize()
	off := pageNo * pageSize
	data := make([]byte, pageSize)
	// A page counted by an earlier virtual read but not yet written
	// lies past the mapping; it reads back all-zero like the first time.
	if off < len(f.mm) {
		copy(data, f.mm[off:])
	}
	return NewHeapPage(hpid, f.desc, data)
}

// WritePage flushes p's current bytes to its page's position in the
// file, growing and remapping the file first if p's page number lies
// beyond the current mapping.
func (f *HeapFile) WritePage(p Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pageNo := p.ID().PageNo()
	pageSize := PageSize()
	need := int64(pageNo+1) * int64(pageSize)

	info, err := f.file.Stat()
	if err != nil {
		return errors.Wrapf(dberrors.IoFailure, "stat heap file %q: %v", f.path, err)
	}
	if info.Size() < need {
		if err := f.file.Truncate(need); err != nil {
			return errors.Wrapf(dberrors.IoFailure, "grow heap file %q: %v", f.path, err)
		}
		if err := f.remapLocked(); err != nil {
			return err
		}
	}

	off := pageNo * pageSize
	copy(f.mm[off:off+pageSize], p.Bytes())
	if err := f.mm.Flush(); err != nil {
		return errors.Wrapf(dberrors.IoFailure, "flush heap file %q: %v", f.path, err)
	}
	if pageNo+1 > f.numPages {
		f.numPages = pageNo + 1
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (f *HeapFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mm != nil {
		if err := f.mm.Unmap(); err != nil {
			return errors.Wrapf(dberrors.IoFailure, "unmap heap file %q: %v", f.path, err)
		}
	}
	return errors.Wrap(f.file.Close(), "close heap file")
}
