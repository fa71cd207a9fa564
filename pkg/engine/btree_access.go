package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/btree"
	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
	"github.com/latticedb/lattice/pkg/txn"
)

// getBTreeFile fetches and type-asserts the registered file for
// tableID, which must have been opened with btree.OpenBTreeFile rather
// than storage.OpenHeapFile.
func (t *Transaction) getBTreeFile(tableID uint64) (*btree.BTreeFile, error) {
	file, err := t.ctx.Catalog.GetFile(tableID)
	if err != nil {
		return nil, err
	}
	bt, ok := file.(*btree.BTreeFile)
	if !ok {
		return nil, errors.Newf("engine: table %d is not a btree file", tableID)
	}
	return bt, nil
}

// rootPtrLockID is the lock this package takes to serialize access to
// a whole B+-tree: BTreeFile's structural mutations (split, steal,
// merge) touch several pages at once under their own internal mutex,
// so rather than latch every page they might touch at the
// transaction-lock level, a writer takes this single page EXCLUSIVE
// and a reader takes it SHARED. This is coarser than the per-page S/X
// locking heap tuples get, trading index-wide concurrency for a much
// simpler protocol.
func rootPtrLockID(tableID uint64) tuple.PageID {
	return btree.NewPageID(tableID, 0, btree.RootPtr)
}

// InsertIndexTuple inserts tp into the B+-tree index registered as
// tableID, keyed on the field btree.OpenBTreeFile was given.
func (t *Transaction) InsertIndexTuple(tableID uint64, tp *tuple.Tuple) error {
	bt, err := t.getBTreeFile(tableID)
	if err != nil {
		return err
	}
	if !tp.Desc.Equals(bt.TupleDesc()) {
		return errors.Wrapf(dberrors.SchemaMismatch, "insert into index %d", tableID)
	}
	if err := t.lockPage(rootPtrLockID(tableID), txn.Exclusive); err != nil {
		return err
	}
	return bt.InsertTuple(tp)
}

// DeleteIndexTuple removes tp (identified by its RecordID) from the
// B+-tree index registered as tableID.
func (t *Transaction) DeleteIndexTuple(tableID uint64, tp *tuple.Tuple) error {
	bt, err := t.getBTreeFile(tableID)
	if err != nil {
		return err
	}
	if err := t.lockPage(rootPtrLockID(tableID), txn.Exclusive); err != nil {
		return err
	}
	return bt.DeleteTuple(tp)
}

// FindIndexTuple returns the tuple in the index registered as tableID
// whose key field equals key, or nil if none exists.
func (t *Transaction) FindIndexTuple(tableID uint64, key tuple.Field) (*tuple.Tuple, error) {
	bt, err := t.getBTreeFile(tableID)
	if err != nil {
		return nil, err
	}
	if err := t.lockPage(rootPtrLockID(tableID), txn.Shared); err != nil {
		return nil, err
	}
	return bt.Find(key)
}

// IndexScan is a restartable iterator over an index's tuples in key
// order, either unconditional or filtered by a predicate operator.
type IndexScan struct {
	t       *Transaction
	tableID uint64
	it      storage.TupleIterator
}

// NewFullIndexScan locks the index SHARED for the duration of the scan
// and returns every tuple in key order, with no predicate.
func (t *Transaction) NewFullIndexScan(tableID uint64) (*IndexScan, error) {
	bt, err := t.getBTreeFile(tableID)
	if err != nil {
		return nil, err
	}
	if err := t.lockPage(rootPtrLockID(tableID), txn.Shared); err != nil {
		return nil, err
	}
	it, err := bt.Iterator()
	if err != nil {
		return nil, err
	}
	return &IndexScan{t: t, tableID: tableID, it: it}, nil
}

// NewIndexScan locks the index SHARED for the duration of the scan and
// returns only the tuples whose key field compares true against v
// under op, seeking and terminating per op the way btree.IndexScan
// does.
func (t *Transaction) NewIndexScan(tableID uint64, op btree.Op, v tuple.Field) (*IndexScan, error) {
	bt, err := t.getBTreeFile(tableID)
	if err != nil {
		return nil, err
	}
	if err := t.lockPage(rootPtrLockID(tableID), txn.Shared); err != nil {
		return nil, err
	}
	it, err := bt.IndexScan(op, v)
	if err != nil {
		return nil, err
	}
	return &IndexScan{t: t, tableID: tableID, it: it}, nil
}

func (s *IndexScan) HasNext() bool { return s.it.HasNext() }

func (s *IndexScan) Next() (*tuple.Tuple, error) { return s.it.Next() }

func (s *IndexScan) Close() { s.it.Close() }
