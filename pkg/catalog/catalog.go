// Package catalog tracks the set of tables known to a running engine:
// their schema and their backing file. It is deliberately in-memory
// only, rebuilt from scratch (via AddTable calls) each time the
// process starts — there is no on-disk catalog format here, mirroring
// the original system's Database.getCatalog() table registry.
package catalog

import (
	"sync"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

type tableEntry struct {
	desc tuple.TupleDesc
	file storage.DBFile
	name string
}

// Catalog is a thread-safe registry of tables keyed by TableID.
type Catalog struct {
	mu     sync.RWMutex
	tables map[uint64]tableEntry
}

func New() *Catalog {
	return &Catalog{tables: make(map[uint64]tableEntry)}
}

// AddTable registers file under the TableID derived from path,
// returning that id. Calling AddTable again for the same path is
// idempotent and returns the same id, since TableID is a pure function
// of the path.
func (c *Catalog) AddTable(path string, name string, desc tuple.TupleDesc, file storage.DBFile) (uint64, error) {
	id, err := storage.TableID(path)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[id] = tableEntry{desc: desc, file: file, name: name}
	return id, nil
}

func (c *Catalog) GetFile(tableID uint64) (storage.DBFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableID]
	if !ok {
		return nil, dberrors.NotFound
	}
	return t.file, nil
}

func (c *Catalog) GetTupleDesc(tableID uint64) (tuple.TupleDesc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableID]
	if !ok {
		return tuple.TupleDesc{}, dberrors.NotFound
	}
	return t.desc, nil
}

func (c *Catalog) TableName(tableID uint64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableID]
	if !ok {
		return "", dberrors.NotFound
	}
	return t.name, nil
}

// TableIDByName is a convenience lookup for callers (tests, the CLI)
// that only know a table's friendly name.
func (c *Catalog) TableIDByName(name string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, t := range c.tables {
		if t.name == name {
			return id, nil
		}
	}
	return 0, dberrors.NotFound
}
