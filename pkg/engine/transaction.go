package engine

import (
	"context"

	"github.com/latticedb/lattice/pkg/tuple"
	"github.com/latticedb/lattice/pkg/txn"
)

// Transaction is one unit of isolated work against a Context. It owns
// a TransactionID; which pages it has locked lives in ctx.Locks, and
// which pages it dirtied lives on the pages themselves, so Commit and
// Abort only need the tid to find both.
type Transaction struct {
	ctx   *Context
	tid   txn.TransactionID
	ctxGo context.Context
}

// Begin starts a new transaction against ctx. goCtx governs how long
// a lock acquisition within this transaction will wait before giving
// up due to caller cancellation, independent of the lock manager's own
// deadlock/timeout retry budget.
func Begin(ctx *Context, goCtx context.Context) *Transaction {
	return &Transaction{ctx: ctx, tid: txn.NewTransactionID(), ctxGo: goCtx}
}

func (t *Transaction) ID() txn.TransactionID { return t.tid }

// lockPage blocks until t holds mode on pid, per the lock manager's
// retry/backoff/deadlock-detection rules.
func (t *Transaction) lockPage(pid tuple.PageID, mode txn.LockMode) error {
	return t.ctx.Locks.Acquire(t.ctxGo, t.tid, pid, mode)
}

// Commit flushes every page this transaction dirtied and releases all
// of its locks.
func (t *Transaction) Commit() error {
	if err := t.ctx.Pool.TransactionComplete(uint64(t.tid), true); err != nil {
		return err
	}
	t.ctx.Locks.ReleaseAll(t.tid)
	return nil
}

// Abort discards every page this transaction dirtied (NO-STEAL means
// none of them were ever written to disk) and releases all of its
// locks.
func (t *Transaction) Abort() error {
	if err := t.ctx.Pool.TransactionComplete(uint64(t.tid), false); err != nil {
		return err
	}
	t.ctx.Locks.ReleaseAll(t.tid)
	return nil
}
