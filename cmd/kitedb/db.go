package main

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/latticedb/lattice/internal/config"
	"github.com/latticedb/lattice/pkg/engine"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

// DB bundles a config.Config and an engine.Context, the two pieces
// every command needs, the way server.DB bundled the teacher's
// FileMgr/Log/BufferPool.
type DB struct {
	Config *config.Config
	Ctx    *engine.Context
	Log    *logrus.Logger
}

// OpenDB loads config from configFile (if non-empty), sets the
// process page size from it, and builds a fresh engine.Context. It
// fails once the page size has frozen (after the first file open).
func OpenDB(configFile string) (*DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyPageSize(); err != nil {
		return nil, err
	}
	return &DB{
		Config: cfg,
		Ctx:    engine.NewFromConfig(cfg),
		Log:    cfg.NewLogger(),
	}, nil
}

// OpenHeapTable opens (creating if necessary) a heap file at dir/name
// and registers it with the DB's catalog and buffer pool.
func (db *DB) OpenHeapTable(dir, name string, desc tuple.TupleDesc) (uint64, error) {
	path := filepath.Join(dir, name+".heap")
	file, err := storage.OpenHeapFile(path, desc)
	if err != nil {
		return 0, err
	}
	tableID, err := db.Ctx.Catalog.AddTable(path, name, desc, file)
	if err != nil {
		return 0, err
	}
	db.Ctx.Pool.RegisterFile(tableID, file)
	return tableID, nil
}

// Begin starts a new transaction against db's engine context, bound to
// goCtx for cancellation of lock waits.
func (db *DB) Begin(goCtx context.Context) *engine.Transaction {
	return engine.Begin(db.Ctx, goCtx)
}
