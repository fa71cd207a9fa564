// Package engine wires the catalog, buffer pool, and lock manager
// together into the one object every storage operation runs against,
// replacing the ambient package-level lock table the teacher's txn
// package built its concurrencyMgr on top of.
package engine

import (
	"github.com/latticedb/lattice/internal/config"
	"github.com/latticedb/lattice/pkg/buffer"
	"github.com/latticedb/lattice/pkg/catalog"
	"github.com/latticedb/lattice/pkg/txn"
)

// Context bundles the three pieces of shared state a transaction
// needs to touch a page: where its table lives (Catalog), where pages
// are cached (Pool), and who currently holds what lock on them
// (LockManager). Every Begin'd Transaction carries a reference to one
// Context; nothing here is a process-wide singleton.
type Context struct {
	Catalog *catalog.Catalog
	Pool    *buffer.Pool
	Locks   *txn.LockManager
}

// New builds a fresh Context with a buffer pool of the given capacity
// and every other tunable at its built-in default.
func New(poolCapacity int) *Context {
	return &Context{
		Catalog: catalog.New(),
		Pool:    buffer.New(poolCapacity),
		Locks:   txn.NewLockManager(),
	}
}

// NewFromConfig builds a Context from a loaded config.Config, wiring
// the pool's old-region fraction/promotion age and the lock manager's
// retry backoff/detection thresholds through to their constructors
// instead of relying on package-level defaults. It does not call
// cfg.ApplyPageSize — callers must do that themselves before opening
// any file, since page size is process-wide, not per-Context.
func NewFromConfig(cfg *config.Config) *Context {
	return &Context{
		Catalog: catalog.New(),
		Pool:    buffer.NewWithOptions(cfg.PoolCapacity, cfg.OldListFraction, cfg.PromotionAge()),
		Locks: txn.NewLockManagerWithOptions(
			cfg.LockRetryMin(), cfg.LockRetryMax(),
			cfg.DeadlockDetectRetry, cfg.TimeoutAbortRetry,
		),
	}
}
