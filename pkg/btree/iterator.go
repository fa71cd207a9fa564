package btree

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

var errNoMoreTuples = errors.New("btree: no more tuples")

// Op is a range-scan predicate operator, matching the seek/termination
// rules spec.md's Iteration section spells out for each comparison.
type Op int

const (
	Equals Op = iota
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
)

func (op Op) String() string {
	switch op {
	case Equals:
		return "="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return "≥"
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "≤"
	default:
		return "?"
	}
}

// seeksToKey reports whether op's scan should seek directly to the
// leaf that could contain v (=, >, ≥) rather than starting from the
// leftmost leaf (<, ≤).
func seeksToKey(op Op) bool {
	return op == Equals || op == GreaterThan || op == GreaterThanOrEqual
}

// satisfies reports whether a key compares true against v under op,
// where cmp is compareFields(key, v).
func satisfies(cmp int, op Op) bool {
	switch op {
	case Equals:
		return cmp == 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanOrEqual:
		return cmp >= 0
	case LessThan:
		return cmp < 0
	case LessThanOrEqual:
		return cmp <= 0
	default:
		return false
	}
}

// Find returns the tuple whose key field equals key, or nil if none
// exists.
func (bt *BTreeFile) Find(key tuple.Field) (*tuple.Tuple, error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	leaf, err := bt.findLeafLocked(key)
	if err != nil {
		return nil, err
	}
	// Descent sends a key equal to a separator into the left subtree,
	// while that tuple sits first in the next leaf, so keep walking
	// right until a larger key shows up.
	for {
		for _, t := range leaf.SortedTuples() {
			c := compareFields(key, leaf.keyOf(t))
			if c == 0 {
				return t, nil
			}
			if c < 0 {
				return nil, nil
			}
		}
		if !leaf.HasNext() {
			return nil, nil
		}
		next, err := bt.readLeafLocked(NewPageID(bt.tableID, leaf.NextNo(), Leaf))
		if err != nil {
			return nil, err
		}
		leaf = next
	}
}

// Iterator scans every tuple in the file in key order, starting at the
// leftmost leaf. This is the unconditional "forward scan" spec.md's
// Iteration section describes, grounded on BTreeFile.java's
// BTreeFileIterator.
func (bt *BTreeFile) Iterator() (storage.TupleIterator, error) {
	bt.mu.Lock()
	leaf, err := bt.findLeafLocked(nil)
	bt.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &btreeIterator{bt: bt, current: leaf.SortedTuples(), hasNext: leaf.HasNext(), nextNo: leaf.NextNo()}, nil
}

type btreeIterator struct {
	bt      *BTreeFile
	current []*tuple.Tuple
	idx     int
	hasNext bool
	nextNo  int
	err     error
}

func (it *btreeIterator) HasNext() bool {
	if it.err != nil {
		return false
	}
	for it.idx >= len(it.current) {
		if !it.hasNext {
			return false
		}
		it.bt.mu.Lock()
		pid := NewPageID(it.bt.tableID, it.nextNo, Leaf)
		leaf, err := it.bt.readPageLocked(pid)
		it.bt.mu.Unlock()
		if err != nil {
			it.err = err
			return false
		}
		lp := leaf.(*LeafPage)
		it.current = lp.SortedTuples()
		it.idx = 0
		it.hasNext = lp.HasNext()
		it.nextNo = lp.NextNo()
	}
	return true
}

func (it *btreeIterator) Next() (*tuple.Tuple, error) {
	if it.err != nil {
		return nil, it.err
	}
	if !it.HasNext() {
		return nil, errNoMoreTuples
	}
	t := it.current[it.idx]
	it.idx++
	return t, nil
}

func (it *btreeIterator) Close() {}

// IndexScan returns the tuples whose key field compares true against v
// under op, in key order. Per spec.md's Iteration section: =, >, ≥
// seek straight to the leftmost leaf that could contain v and then
// advance until the predicate first fails (for =, failure is reaching
// a key greater than v); <, ≤ scan from the leftmost leaf in the whole
// file and stop at the first key that fails the predicate. Grounded on
// BTreeFile.java's BTreeSearchIterator.readNext.
func (bt *BTreeFile) IndexScan(op Op, v tuple.Field) (storage.TupleIterator, error) {
	bt.mu.Lock()
	var leaf *LeafPage
	var err error
	if seeksToKey(op) {
		leaf, err = bt.findLeafLocked(v)
	} else {
		leaf, err = bt.findLeafLocked(nil)
	}
	bt.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &predicateIterator{
		bt:      bt,
		op:      op,
		v:       v,
		current: leaf.SortedTuples(),
		hasNext: leaf.HasNext(),
		nextNo:  leaf.NextNo(),
	}, nil
}

// predicateIterator lazily primes the next matching tuple so that
// HasNext can decide, without yielding it, whether the predicate has
// failed in a way that ends the scan (see fill).
type predicateIterator struct {
	bt      *BTreeFile
	op      Op
	v       tuple.Field
	current []*tuple.Tuple
	idx     int
	hasNext bool
	nextNo  int
	done    bool
	err     error
	queued  *tuple.Tuple
	primed  bool
}

func (it *predicateIterator) advanceLeaf() bool {
	if !it.hasNext {
		it.done = true
		return false
	}
	it.bt.mu.Lock()
	pid := NewPageID(it.bt.tableID, it.nextNo, Leaf)
	p, err := it.bt.readPageLocked(pid)
	it.bt.mu.Unlock()
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	lp := p.(*LeafPage)
	it.current = lp.SortedTuples()
	it.idx = 0
	it.hasNext = lp.HasNext()
	it.nextNo = lp.NextNo()
	return true
}

func (it *predicateIterator) fill() {
	if it.primed || it.done || it.err != nil {
		return
	}
	for {
		for it.idx < len(it.current) {
			t := it.current[it.idx]
			it.idx++
			key, _ := t.Field(it.bt.keyField)
			cmp := compareFields(key, it.v)
			if satisfies(cmp, it.op) {
				it.queued = t
				it.primed = true
				return
			}
			switch it.op {
			case LessThan, LessThanOrEqual:
				// Tuples are visited in increasing key order, so once
				// one fails < or ≤ every later one fails it too.
				it.done = true
				return
			case Equals:
				if cmp > 0 {
					it.done = true
					return
				}
			}
			// >, ≥ (and < key, for =) just haven't reached v yet; keep
			// skipping forward.
		}
		if !it.advanceLeaf() {
			return
		}
	}
}

func (it *predicateIterator) HasNext() bool {
	if it.err != nil {
		return false
	}
	it.fill()
	return it.primed
}

func (it *predicateIterator) Next() (*tuple.Tuple, error) {
	if it.err != nil {
		return nil, it.err
	}
	if !it.HasNext() {
		return nil, errNoMoreTuples
	}
	t := it.queued
	it.queued = nil
	it.primed = false
	return t, nil
}

func (it *predicateIterator) Close() {}
