package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

func newTestInternal(t *testing.T, pageNo int) *InternalPage {
	pageSize := 160
	id := NewPageID(1, pageNo, Internal)
	p, err := NewInternalPage(id, tuple.IntType, 0, EmptyInternalPageData(pageSize), pageSize)
	assert.NoError(t, err)
	return p
}

func entryWithKey(k int32, left, right PageID) *Entry {
	return &Entry{Key: tuple.IntField{Value: k}, LeftChild: left, RightChild: right}
}

func TestInternalInsertEntryKeepsOrder(t *testing.T) {
	p := newTestInternal(t, 1)
	leaf := func(n int) PageID { return NewPageID(1, n, Leaf) }

	assert.NoError(t, p.InsertEntry(entryWithKey(5, leaf(1), leaf(2))))
	assert.NoError(t, p.InsertEntry(entryWithKey(1, leaf(3), leaf(4))))
	assert.NoError(t, p.InsertEntry(entryWithKey(3, leaf(5), leaf(6))))

	entries := p.Entries()
	var keys []int32
	for _, e := range entries {
		keys = append(keys, e.Key.(tuple.IntField).Value)
	}
	assert.Equal(t, []int32{1, 3, 5}, keys)
}

func TestInternalFullReturnsPageFull(t *testing.T) {
	p := newTestInternal(t, 1)
	leaf := func(n int) PageID { return NewPageID(1, n, Leaf) }
	n := p.NumSlots()
	for i := 0; i < n; i++ {
		assert.NoError(t, p.InsertEntry(entryWithKey(int32(i), leaf(2*i), leaf(2*i+1))))
	}
	err := p.InsertEntry(entryWithKey(int32(n+1), leaf(1000), leaf(1001)))
	assert.ErrorIs(t, err, dberrors.PageFull)
}

func TestInternalDeleteEntryAtShiftsLeft(t *testing.T) {
	p := newTestInternal(t, 1)
	leaf := func(n int) PageID { return NewPageID(1, n, Leaf) }
	assert.NoError(t, p.InsertEntry(entryWithKey(1, leaf(1), leaf(2))))
	assert.NoError(t, p.InsertEntry(entryWithKey(2, leaf(2), leaf(3))))
	assert.NoError(t, p.InsertEntry(entryWithKey(3, leaf(3), leaf(4))))

	assert.NoError(t, p.DeleteEntryAt(1))
	entries := p.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(1), entries[0].Key.(tuple.IntField).Value)
	assert.Equal(t, int32(3), entries[1].Key.(tuple.IntField).Value)
}

func TestInternalBytesRoundTrip(t *testing.T) {
	p := newTestInternal(t, 5)
	p.SetParentNo(9)
	leaf := func(n int) PageID { return NewPageID(1, n, Leaf) }
	assert.NoError(t, p.InsertEntry(entryWithKey(1, leaf(1), leaf(2))))

	data := p.Bytes()
	reloaded, err := NewInternalPage(p.BTreeID(), tuple.IntType, 0, data, 160)
	assert.NoError(t, err)
	assert.Equal(t, 9, reloaded.ParentNo())
	assert.Len(t, reloaded.Entries(), 1)
}
