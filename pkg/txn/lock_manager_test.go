package txn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
)

func testPage(n int) storage.HeapPageID {
	return storage.NewHeapPageID(1, n)
}

func fastLockManager() *LockManager {
	return NewLockManagerWithOptions(2*time.Millisecond, 5*time.Millisecond, 2, 6)
}

func TestSharedLocksCanBeHeldTogether(t *testing.T) {
	lm := fastLockManager()
	pid := testPage(0)
	ctx := context.Background()

	assert.NoError(t, lm.Acquire(ctx, 1, pid, Shared))
	assert.NoError(t, lm.Acquire(ctx, 2, pid, Shared))
	assert.True(t, lm.HoldsLock(1, pid))
	assert.True(t, lm.HoldsLock(2, pid))
}

func TestExclusiveUpgradeFromSoleSharedHolder(t *testing.T) {
	lm := fastLockManager()
	pid := testPage(0)
	ctx := context.Background()

	assert.NoError(t, lm.Acquire(ctx, 1, pid, Shared))
	assert.NoError(t, lm.Acquire(ctx, 1, pid, Exclusive))
	assert.True(t, lm.HoldsLock(1, pid))
}

func TestExclusiveBlocksOtherTransactions(t *testing.T) {
	lm := fastLockManager()
	pid := testPage(0)
	ctx := context.Background()

	assert.NoError(t, lm.Acquire(ctx, 1, pid, Exclusive))

	done := make(chan error, 1)
	go func() {
		done <- lm.Acquire(ctx, 2, pid, Shared)
	}()

	select {
	case <-done:
		t.Fatal("txn 2 should not have acquired the lock while txn 1 holds exclusive")
	case <-time.After(20 * time.Millisecond):
	}

	lm.Release(1, pid)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("txn 2 never acquired the lock after release")
	}
}

func TestTimeoutAbortsAfterRetryBudget(t *testing.T) {
	lm := fastLockManager()
	pid := testPage(0)
	ctx := context.Background()

	assert.NoError(t, lm.Acquire(ctx, 1, pid, Exclusive))

	err := lm.Acquire(ctx, 2, pid, Exclusive)
	assert.ErrorIs(t, err, dberrors.TimeoutAborted)
}

func TestReleaseAllDropsEveryLock(t *testing.T) {
	lm := fastLockManager()
	p1, p2 := testPage(0), testPage(1)
	ctx := context.Background()

	assert.NoError(t, lm.Acquire(ctx, 1, p1, Shared))
	assert.NoError(t, lm.Acquire(ctx, 1, p2, Exclusive))

	lm.ReleaseAll(1)
	assert.False(t, lm.HoldsLock(1, p1))
	assert.False(t, lm.HoldsLock(1, p2))
	assert.False(t, lm.PageIsLocked(p1))
	assert.False(t, lm.PageIsLocked(p2))
}

// TestDeadlockIsDetected builds the classic two-transaction cycle: txn 1
// holds block A and waits for block B, txn 2 holds block B and waits for
// block A. One of the two must come back with DeadlockAborted rather
// than both waiting out the full timeout.
func TestDeadlockIsDetected(t *testing.T) {
	lm := fastLockManager()
	a, b := testPage(0), testPage(1)

	assert.NoError(t, lm.Acquire(context.Background(), 1, a, Exclusive))
	assert.NoError(t, lm.Acquire(context.Background(), 2, b, Exclusive))

	errs := make(chan error, 2)
	go func() { errs <- lm.Acquire(context.Background(), 1, b, Exclusive) }()
	go func() { errs <- lm.Acquire(context.Background(), 2, a, Exclusive) }()

	var gotDeadlock bool
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				assert.ErrorIs(t, err, dberrors.DeadlockAborted)
				gotDeadlock = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock was never resolved")
		}
	}
	assert.True(t, gotDeadlock, "expected at least one waiter to be aborted for deadlock")
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	lm := fastLockManager()
	pid := testPage(0)

	assert.NoError(t, lm.Acquire(context.Background(), 1, pid, Exclusive))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := lm.Acquire(ctx, 2, pid, Exclusive)
	assert.Error(t, err)
}
