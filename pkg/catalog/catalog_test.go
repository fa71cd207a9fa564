package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

func TestAddTableAndLookup(t *testing.T) {
	c := New()
	desc := tuple.NewTupleDesc(tuple.IntFieldDesc("id"))
	path := filepath.Join(t.TempDir(), "t.heap")
	f, err := storage.OpenHeapFile(path, desc)
	assert.NoError(t, err)
	defer f.Close()

	id, err := c.AddTable(path, "orders", desc, f)
	assert.NoError(t, err)

	gotFile, err := c.GetFile(id)
	assert.NoError(t, err)
	assert.Equal(t, f, gotFile)

	gotDesc, err := c.GetTupleDesc(id)
	assert.NoError(t, err)
	assert.True(t, gotDesc.Equals(desc))

	name, err := c.TableName(id)
	assert.NoError(t, err)
	assert.Equal(t, "orders", name)

	byName, err := c.TableIDByName("orders")
	assert.NoError(t, err)
	assert.Equal(t, id, byName)
}

func TestAddTableIsIdempotentByPath(t *testing.T) {
	c := New()
	desc := tuple.NewTupleDesc(tuple.IntFieldDesc("id"))
	path := filepath.Join(t.TempDir(), "t.heap")
	f, _ := storage.OpenHeapFile(path, desc)
	defer f.Close()

	id1, err := c.AddTable(path, "orders", desc, f)
	assert.NoError(t, err)
	id2, err := c.AddTable(path, "orders", desc, f)
	assert.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestCatalogUnknownTable(t *testing.T) {
	c := New()
	_, err := c.GetFile(12345)
	assert.ErrorIs(t, err, dberrors.NotFound)

	_, err = c.TableIDByName("nope")
	assert.ErrorIs(t, err, dberrors.NotFound)
}
