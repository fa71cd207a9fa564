package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

func leafTestDesc() tuple.TupleDesc {
	return tuple.NewTupleDesc(tuple.IntFieldDesc("id"), tuple.StringFieldDesc("payload", 8))
}

func newLeafRow(id int32) *tuple.Tuple {
	desc := leafTestDesc()
	t := tuple.New(desc)
	_ = t.SetField(0, tuple.IntField{Value: id})
	_ = t.SetField(1, tuple.StringField{Value: "x", MaxLen: 8})
	return t
}

func newTestLeaf(t *testing.T, pageNo int) *LeafPage {
	desc := leafTestDesc()
	pageSize := 160
	id := NewPageID(1, pageNo, Leaf)
	leaf, err := NewLeafPage(id, desc, 0, EmptyLeafPageData(pageSize, desc), pageSize)
	assert.NoError(t, err)
	return leaf
}

func TestLeafInsertSortedKeepsOrder(t *testing.T) {
	leaf := newTestLeaf(t, 1)
	for _, v := range []int32{5, 1, 3, 2, 4} {
		assert.NoError(t, leaf.InsertSorted(newLeafRow(v)))
	}
	sorted := leaf.SortedTuples()
	var got []int32
	for _, tp := range sorted {
		f, _ := tp.Field(0)
		got = append(got, f.(tuple.IntField).Value)
	}
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, got)
}

func TestLeafInsertSortedAssignsRecordIDs(t *testing.T) {
	leaf := newTestLeaf(t, 7)
	row := newLeafRow(1)
	assert.NoError(t, leaf.InsertSorted(row))
	assert.Equal(t, 0, row.RecordID.SlotIndex)
	assert.Equal(t, leaf.BTreeID().String(), row.RecordID.PageID.String())
}

func TestLeafFullReturnsPageFull(t *testing.T) {
	leaf := newTestLeaf(t, 1)
	n := leaf.NumSlots()
	for i := 0; i < n; i++ {
		assert.NoError(t, leaf.InsertSorted(newLeafRow(int32(i))))
	}
	err := leaf.InsertSorted(newLeafRow(int32(n + 1)))
	assert.ErrorIs(t, err, dberrors.PageFull)
}

func TestLeafDeleteTupleShiftsLeft(t *testing.T) {
	leaf := newTestLeaf(t, 1)
	rows := make([]*tuple.Tuple, 3)
	for i, v := range []int32{1, 2, 3} {
		rows[i] = newLeafRow(v)
		assert.NoError(t, leaf.InsertSorted(rows[i]))
	}
	assert.NoError(t, leaf.DeleteTuple(rows[1]))

	sorted := leaf.SortedTuples()
	assert.Len(t, sorted, 2)
	f0, _ := sorted[0].Field(0)
	f1, _ := sorted[1].Field(0)
	assert.Equal(t, int32(1), f0.(tuple.IntField).Value)
	assert.Equal(t, int32(3), f1.(tuple.IntField).Value)
}

func TestLeafBytesRoundTrip(t *testing.T) {
	leaf := newTestLeaf(t, 2)
	leaf.SetParentNo(9)
	leaf.SetPrevNo(1)
	leaf.SetNextNo(3)
	assert.NoError(t, leaf.InsertSorted(newLeafRow(1)))

	data := leaf.Bytes()
	reloaded, err := NewLeafPage(leaf.BTreeID(), leafTestDesc(), 0, data, 160)
	assert.NoError(t, err)
	assert.Equal(t, 9, reloaded.ParentNo())
	assert.Equal(t, 1, reloaded.PrevNo())
	assert.Equal(t, 3, reloaded.NextNo())
	assert.Len(t, reloaded.SortedTuples(), 1)
}

func TestLeafClearResetsSiblingsAndTuples(t *testing.T) {
	leaf := newTestLeaf(t, 1)
	assert.NoError(t, leaf.InsertSorted(newLeafRow(1)))
	leaf.SetParentNo(4)
	leaf.SetPrevNo(2)
	leaf.SetNextNo(3)

	leaf.Clear()
	assert.False(t, leaf.HasParent())
	assert.False(t, leaf.HasPrev())
	assert.False(t, leaf.HasNext())
	assert.Empty(t, leaf.SortedTuples())
}
