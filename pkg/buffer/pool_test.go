package buffer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

func poolTestDesc() tuple.TupleDesc {
	return tuple.NewTupleDesc(tuple.IntFieldDesc("id"), tuple.StringFieldDesc("payload", 8))
}

func newPoolAndFile(t *testing.T, capacity int) (*Pool, *storage.HeapFile) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.heap")
	f, err := storage.OpenHeapFile(path, poolTestDesc())
	assert.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	p := New(capacity)
	p.RegisterFile(f.TableID(), f)
	return p, f
}

func TestGetPageFaultsInFromFile(t *testing.T) {
	p, f := newPoolAndFile(t, DefaultCapacity)
	pid := storage.NewHeapPageID(f.TableID(), 0)

	page, err := p.GetPage(pid)
	assert.NoError(t, err)
	assert.Equal(t, pid.String(), page.ID().String())
}

func TestGetPageCachesOnSecondCall(t *testing.T) {
	p, f := newPoolAndFile(t, DefaultCapacity)
	pid := storage.NewHeapPageID(f.TableID(), 0)

	first, err := p.GetPage(pid)
	assert.NoError(t, err)
	second, err := p.GetPage(pid)
	assert.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetPageUnknownTable(t *testing.T) {
	p := New(4)
	_, err := p.GetPage(storage.NewHeapPageID(9999, 0))
	assert.ErrorIs(t, err, dberrors.NotFound)
}

func TestEvictionSkipsDirtyPages(t *testing.T) {
	p, f := newPoolAndFile(t, 2)

	page0, err := p.GetPage(storage.NewHeapPageID(f.TableID(), 0))
	assert.NoError(t, err)
	page0.MarkDirty(true, 1)

	page1, err := p.GetPage(storage.NewHeapPageID(f.TableID(), 1))
	assert.NoError(t, err)
	page1.MarkDirty(true, 1)

	// Both cached pages are dirty and capacity is exhausted; admitting a
	// third distinct page must fail rather than steal either one.
	_, err = p.GetPage(storage.NewHeapPageID(f.TableID(), 2))
	assert.ErrorIs(t, err, dberrors.AllPagesDirty)
}

func TestTransactionCompleteFlushesOnCommit(t *testing.T) {
	p, f := newPoolAndFile(t, DefaultCapacity)
	pid := storage.NewHeapPageID(f.TableID(), 0)

	page, err := p.GetPage(pid)
	assert.NoError(t, err)
	hp := page.(*storage.HeapPage)
	row := tuple.New(poolTestDesc())
	assert.NoError(t, row.SetField(0, tuple.IntField{Value: 1}))
	assert.NoError(t, row.SetField(1, tuple.StringField{Value: "x", MaxLen: 8}))
	assert.NoError(t, hp.InsertTuple(row))
	hp.MarkDirty(true, 7)

	assert.NoError(t, p.TransactionComplete(7, true))
	assert.False(t, hp.IsDirty())

	reread, err := f.ReadPage(pid)
	assert.NoError(t, err)
	assert.Len(t, reread.(*storage.HeapPage).AllTuples(), 1)
}

func TestTransactionCompleteDiscardsOnAbort(t *testing.T) {
	p, f := newPoolAndFile(t, DefaultCapacity)
	pid := storage.NewHeapPageID(f.TableID(), 0)

	page, err := p.GetPage(pid)
	assert.NoError(t, err)
	hp := page.(*storage.HeapPage)
	row := tuple.New(poolTestDesc())
	assert.NoError(t, row.SetField(0, tuple.IntField{Value: 1}))
	assert.NoError(t, row.SetField(1, tuple.StringField{Value: "x", MaxLen: 8}))
	assert.NoError(t, hp.InsertTuple(row))
	hp.MarkDirty(true, 7)

	assert.NoError(t, p.TransactionComplete(7, false))

	reread, err := p.GetPage(pid)
	assert.NoError(t, err)
	assert.Empty(t, reread.(*storage.HeapPage).AllTuples())
}

func TestRemovePageDropsFromCache(t *testing.T) {
	p, f := newPoolAndFile(t, DefaultCapacity)
	pid := storage.NewHeapPageID(f.TableID(), 0)

	page1, err := p.GetPage(pid)
	assert.NoError(t, err)
	p.RemovePage(pid)

	page2, err := p.GetPage(pid)
	assert.NoError(t, err)
	assert.NotSame(t, page1, page2)
}

func TestPromotionAgeMovesPageToYoungOnSecondTouch(t *testing.T) {
	p := NewWithOptions(10, 0.5, time.Millisecond)
	dir := t.TempDir()
	path := filepath.Join(dir, "promote.heap")
	f, err := storage.OpenHeapFile(path, poolTestDesc())
	assert.NoError(t, err)
	defer f.Close()
	p.RegisterFile(f.TableID(), f)

	pid := storage.NewHeapPageID(f.TableID(), 0)
	_, err = p.GetPage(pid)
	assert.NoError(t, err)

	fr := p.index[pid.String()].Value.(*frame)
	assert.False(t, fr.inYoung)

	time.Sleep(5 * time.Millisecond)
	_, err = p.GetPage(pid)
	assert.NoError(t, err)

	fr = p.index[pid.String()].Value.(*frame)
	assert.True(t, fr.inYoung)
}
