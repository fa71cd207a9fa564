package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/btree"
	"github.com/latticedb/lattice/pkg/buffer"
	"github.com/latticedb/lattice/pkg/tuple"
)

func indexTestDesc() tuple.TupleDesc {
	return tuple.NewTupleDesc(tuple.IntFieldDesc("key"), tuple.StringFieldDesc("payload", 16))
}

func newIndexRow(key int32, payload string) *tuple.Tuple {
	desc := indexTestDesc()
	t := tuple.New(desc)
	_ = t.SetField(0, tuple.IntField{Value: key})
	_ = t.SetField(1, tuple.StringField{Value: payload, MaxLen: 16})
	return t
}

func newTestIndexContext(t *testing.T) (*Context, uint64) {
	ctx := New(buffer.DefaultCapacity)
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.btree")
	bt, err := btree.OpenBTreeFile(path, 0, indexTestDesc())
	assert.NoError(t, err)
	t.Cleanup(func() { _ = bt.Close() })

	tableID, err := ctx.Catalog.AddTable(path, "idx", indexTestDesc(), bt)
	assert.NoError(t, err)
	return ctx, tableID
}

func TestInsertIndexTupleAndFind(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())

	row := newIndexRow(7, "seven")
	assert.NoError(t, tx.InsertIndexTuple(tableID, row))
	assert.NoError(t, tx.Commit())

	tx2 := Begin(ctx, context.Background())
	found, err := tx2.FindIndexTuple(tableID, tuple.IntField{Value: 7})
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.True(t, found.Equals(row))
	assert.NoError(t, tx2.Commit())
}

func TestInsertIndexTupleRejectsSchemaMismatch(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())

	wrongDesc := tuple.NewTupleDesc(tuple.IntFieldDesc("only"))
	bad := tuple.New(wrongDesc)
	_ = bad.SetField(0, tuple.IntField{Value: 1})

	err := tx.InsertIndexTuple(tableID, bad)
	assert.Error(t, err)
}

func TestDeleteIndexTupleRemovesEntry(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())
	row := newIndexRow(3, "three")
	assert.NoError(t, tx.InsertIndexTuple(tableID, row))
	assert.NoError(t, tx.Commit())

	tx2 := Begin(ctx, context.Background())
	assert.NoError(t, tx2.DeleteIndexTuple(tableID, row))
	assert.NoError(t, tx2.Commit())

	tx3 := Begin(ctx, context.Background())
	found, err := tx3.FindIndexTuple(tableID, tuple.IntField{Value: 3})
	assert.NoError(t, err)
	assert.Nil(t, found)
	assert.NoError(t, tx3.Commit())
}

func TestFullIndexScanYieldsKeysInOrder(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())
	for _, k := range []int32{5, 1, 3, 4, 2} {
		assert.NoError(t, tx.InsertIndexTuple(tableID, newIndexRow(k, "v")))
	}
	assert.NoError(t, tx.Commit())

	tx2 := Begin(ctx, context.Background())
	scan, err := tx2.NewFullIndexScan(tableID)
	assert.NoError(t, err)
	defer scan.Close()

	var got []int32
	for scan.HasNext() {
		tp, err := scan.Next()
		assert.NoError(t, err)
		f, _ := tp.Field(0)
		got = append(got, f.(tuple.IntField).Value)
	}
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, got)
	assert.NoError(t, tx2.Commit())
}

func TestIndexScanHonorsOperator(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())
	for _, k := range []int32{1, 2, 3, 4, 5} {
		assert.NoError(t, tx.InsertIndexTuple(tableID, newIndexRow(k, "v")))
	}
	assert.NoError(t, tx.Commit())

	tx2 := Begin(ctx, context.Background())
	scan, err := tx2.NewIndexScan(tableID, btree.GreaterThanOrEqual, tuple.IntField{Value: 3})
	assert.NoError(t, err)
	defer scan.Close()

	var got []int32
	for scan.HasNext() {
		tp, err := scan.Next()
		assert.NoError(t, err)
		f, _ := tp.Field(0)
		got = append(got, f.(tuple.IntField).Value)
	}
	assert.Equal(t, []int32{3, 4, 5}, got)
	assert.NoError(t, tx2.Commit())
}

func TestIndexScanHonorsLessThanOperator(t *testing.T) {
	ctx, tableID := newTestIndexContext(t)
	tx := Begin(ctx, context.Background())
	for _, k := range []int32{1, 2, 3, 4, 5} {
		assert.NoError(t, tx.InsertIndexTuple(tableID, newIndexRow(k, "v")))
	}
	assert.NoError(t, tx.Commit())

	tx2 := Begin(ctx, context.Background())
	scan, err := tx2.NewIndexScan(tableID, btree.LessThan, tuple.IntField{Value: 3})
	assert.NoError(t, err)
	defer scan.Close()

	var got []int32
	for scan.HasNext() {
		tp, err := scan.Next()
		assert.NoError(t, err)
		f, _ := tp.Field(0)
		got = append(got, f.(tuple.IntField).Value)
	}
	assert.Equal(t, []int32{1, 2}, got)
	assert.NoError(t, tx2.Commit())
}
