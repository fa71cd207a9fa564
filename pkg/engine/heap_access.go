package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
	"github.com/latticedb/lattice/pkg/txn"
)

// getHeapPage locks pid in the requested mode, then fetches it through
// the buffer pool. Locking before fetching, rather than after, is what
// makes the pool's cached copy actually reflect a consistent view: no
// other transaction can be mutating the page between the two calls.
func (t *Transaction) getHeapPage(pid tuple.PageID, mode txn.LockMode) (*storage.HeapPage, error) {
	if err := t.lockPage(pid, mode); err != nil {
		return nil, err
	}
	page, err := t.ctx.Pool.GetPage(pid)
	if err != nil {
		return nil, err
	}
	hp, ok := page.(*storage.HeapPage)
	if !ok {
		return nil, errors.Newf("engine: page %s is not a heap page", pid)
	}
	return hp, nil
}

// InsertTuple finds a heap page on tableID with a free slot and places
// tp there, generalizing HeapFile's insertTuple scan: it probes pages
// 0..NumPages() inclusive (NumPages() itself being the virtual
// one-past-end page), taking only a SHARED lock to check for room and
// upgrading to EXCLUSIVE on the one page it actually writes to.
func (t *Transaction) InsertTuple(tableID uint64, tp *tuple.Tuple) error {
	desc, err := t.ctx.Catalog.GetTupleDesc(tableID)
	if err != nil {
		return err
	}
	if !tp.Desc.Equals(desc) {
		return errors.Wrapf(dberrors.SchemaMismatch, "insert into table %d", tableID)
	}
	file, err := t.ctx.Catalog.GetFile(tableID)
	if err != nil {
		return err
	}

	numPages := file.NumPages()
	for i := 0; i <= numPages; i++ {
		pid := storage.NewHeapPageID(tableID, i)
		page, err := t.getHeapPage(pid, txn.Shared)
		if err != nil {
			return err
		}
		if page.NumUnusedSlots() == 0 {
			continue
		}
		page, err = t.getHeapPage(pid, txn.Exclusive)
		if err != nil {
			return err
		}
		if err := page.InsertTuple(tp); err != nil {
			return err
		}
		page.MarkDirty(true, uint64(t.tid))
		return nil
	}
	return errors.Wrapf(dberrors.PageFull, "table %d: no page had room after scanning %d pages", tableID, numPages+1)
}

// DeleteTuple removes tp from the page its RecordID names.
func (t *Transaction) DeleteTuple(tableID uint64, tp *tuple.Tuple) error {
	if tp.RecordID == nil {
		return errors.Wrap(dberrors.WrongPage, "delete tuple with no RecordID")
	}
	pid := tp.RecordID.PageID
	if pid.TableID() != tableID {
		return errors.Wrapf(dberrors.WrongPage, "tuple belongs to table %d, not %d", pid.TableID(), tableID)
	}
	page, err := t.getHeapPage(pid, txn.Exclusive)
	if err != nil {
		return err
	}
	if err := page.DeleteTuple(tp); err != nil {
		return err
	}
	page.MarkDirty(true, uint64(t.tid))
	return nil
}

// HeapScan is a restartable, SHARED-locking iterator over one table's
// tuples. Unlike storage.heapFileIterator it goes through the buffer
// pool and the lock manager on every page turnover, so it participates
// in the same transaction as any inserts/deletes this Transaction also
// performs.
type HeapScan struct {
	t       *Transaction
	tableID uint64
	pageNo  int
	current []*tuple.Tuple
	idx     int
}

func (t *Transaction) NewHeapScan(tableID uint64) *HeapScan {
	return &HeapScan{t: t, tableID: tableID}
}

func (s *HeapScan) HasNext() (bool, error) {
	for {
		if s.current != nil && s.idx < len(s.current) {
			return true, nil
		}
		file, err := s.t.ctx.Catalog.GetFile(s.tableID)
		if err != nil {
			return false, err
		}
		if s.pageNo >= file.NumPages() {
			return false, nil
		}
		pid := storage.NewHeapPageID(s.tableID, s.pageNo)
		page, err := s.t.getHeapPage(pid, txn.Shared)
		if err != nil {
			return false, err
		}
		s.pageNo++
		s.current = page.AllTuples()
		s.idx = 0
	}
}

func (s *HeapScan) Next() (*tuple.Tuple, error) {
	ok, err := s.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(dberrors.NotFound, "heap scan exhausted")
	}
	tp := s.current[s.idx]
	s.idx++
	return tp, nil
}
