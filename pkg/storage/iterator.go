package storage

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/tuple"
)

var errNoMoreTuples = errors.New("storage: no more tuples")

// TupleIterator matches the teacher's HasNext/Next shape generalized
// to tuples instead of raw bytes.
type TupleIterator interface {
	HasNext() bool
	Next() (*tuple.Tuple, error)
	Close()
}

// heapFileIterator is a page-at-a-time, untransacted scan over a
// HeapFile: it reads each page from the file once, when it reaches it,
// and keeps that page's tuples in memory until it moves on, so writes
// made to a page after it was read are not seen. The page count is
// taken once, when the iterator is created.
// pkg/engine's transactional iterator wraps the same pattern but
// resolves pages through the buffer pool and a TransactionID instead.
type heapFileIterator struct {
	file     *HeapFile
	pageNo   int
	slotNo   int
	numPages int
	current  []*tuple.Tuple
	idx      int
	err      error
}

func (f *HeapFile) Iterator() TupleIterator {
	return &heapFileIterator{file: f, numPages: f.NumPages()}
}

func (it *heapFileIterator) HasNext() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.current != nil && it.idx < len(it.current) {
			return true
		}
		if it.pageNo >= it.numPages {
			return false
		}
		page, err := it.file.ReadPage(NewHeapPageID(it.file.tableID, it.pageNo))
		it.pageNo++
		if err != nil {
			it.err = err
			return false
		}
		hp := page.(*HeapPage)
		it.current = hp.AllTuples()
		it.idx = 0
	}
}

func (it *heapFileIterator) Next() (*tuple.Tuple, error) {
	if !it.HasNext() {
		if it.err != nil {
			return nil, it.err
		}
		return nil, errNoMoreTuples
	}
	t := it.current[it.idx]
	it.idx++
	return t, nil
}

func (it *heapFileIterator) Close() {
	it.current = nil
	it.pageNo = it.numPages
}
