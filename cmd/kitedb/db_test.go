package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/tuple"
)

// db.go's OpenDB sets the process-wide page size, which freezes once
// the first table file is opened, so after TestOpenDBAndLifecycle has
// opened one no further OpenDB in this test binary can succeed; the
// rest of this file shares the one DB it returns rather than calling
// OpenDB again.
func dbTestDesc() tuple.TupleDesc {
	return tuple.NewTupleDesc(tuple.IntFieldDesc("id"), tuple.StringFieldDesc("name", 16))
}

func TestOpenDBAndLifecycle(t *testing.T) {
	db, err := OpenDB("")
	assert.NoError(t, err)
	assert.NotNil(t, db.Ctx)
	assert.NotNil(t, db.Log)

	t.Run("insert then scan", func(t *testing.T) {
		dir := t.TempDir()
		tableID, err := db.OpenHeapTable(dir, "people", dbTestDesc())
		assert.NoError(t, err)

		tx := db.Begin(context.Background())
		row := tuple.New(dbTestDesc())
		_ = row.SetField(0, tuple.IntField{Value: 1})
		_ = row.SetField(1, tuple.StringField{Value: "ada", MaxLen: 16})
		assert.NoError(t, tx.InsertTuple(tableID, row))
		assert.NoError(t, tx.Commit())

		tx2 := db.Begin(context.Background())
		scan := tx2.NewHeapScan(tableID)
		has, err := scan.HasNext()
		assert.NoError(t, err)
		assert.True(t, has)
		got, err := scan.Next()
		assert.NoError(t, err)
		assert.True(t, got.Equals(row))
		assert.NoError(t, tx2.Commit())
	})

	t.Run("catalog add table is idempotent by path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "reused.heap")
		id1, err := db.Ctx.Catalog.AddTable(path, "reused", dbTestDesc(), nil)
		assert.NoError(t, err)
		id2, err := db.Ctx.Catalog.AddTable(path, "reused", dbTestDesc(), nil)
		assert.NoError(t, err)
		assert.Equal(t, id1, id2)
	})
}

func TestOpenDBSecondCallFailsOncePageSizeIsFrozen(t *testing.T) {
	_, err := OpenDB("")
	assert.Error(t, err)
}
