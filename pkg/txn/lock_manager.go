package txn

import (
	"context"
	"math/rand"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// LockMode is the two modes a page can be locked in: SHARED lets any
// number of readers hold it together, EXCLUSIVE requires sole
// ownership.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

const (
	retryIntervalMin = 200 * time.Millisecond
	retryIntervalMax = 500 * time.Millisecond

	// deadlockDetectRetry is the retry count at which the manager
	// first looks for a wait cycle; before then it just assumes it's
	// contention and backs off.
	deadlockDetectRetry = 1
	// timeoutAbortRetry is the retry count at which a transaction
	// gives up even if no cycle was ever found.
	timeoutAbortRetry = 5
)

type heldLock struct {
	tid  TransactionID
	mode LockMode
}

// LockManager grants page-level SHARED/EXCLUSIVE locks to
// transactions, detecting deadlocks among waiters rather than avoiding
// them up front. One LockManager belongs to one engine.Context; unlike
// the teacher's package-level lockTbl, nothing here is process-global.
type LockManager struct {
	mu deadlock.Mutex

	locks map[string][]heldLock // keyed by PageID.String()
	// waitsFor[tid] is the set of transactions tid is blocked behind,
	// recorded by tryAcquire on the first attempt of a request and
	// dropped once the lock is granted (or by ReleaseAll); it is not
	// refreshed on later retries. detectDeadlock copies it into a
	// fresh graph on each pass.
	waitsFor map[TransactionID]map[TransactionID]struct{}

	retryMin, retryMax          time.Duration
	deadlockDetectAt, timeoutAt int

	log *logrus.Entry
}

func NewLockManager() *LockManager {
	return NewLockManagerWithOptions(retryIntervalMin, retryIntervalMax, deadlockDetectRetry, timeoutAbortRetry)
}

// NewLockManagerWithOptions is NewLockManager with the retry backoff
// range and the deadlock-detection/timeout retry counts overridable,
// for callers wiring these in from internal/config.
func NewLockManagerWithOptions(retryMin, retryMax time.Duration, deadlockDetectAt, timeoutAt int) *LockManager {
	return &LockManager{
		locks:            make(map[string][]heldLock),
		waitsFor:         make(map[TransactionID]map[TransactionID]struct{}),
		retryMin:         retryMin,
		retryMax:         retryMax,
		deadlockDetectAt: deadlockDetectAt,
		timeoutAt:        timeoutAt,
		log:              logrus.WithField("component", "lock_manager"),
	}
}

// Acquire blocks the calling goroutine until tid holds mode on pid, or
// returns dberrors.DeadlockAborted / dberrors.TimeoutAborted if it
// should give up. ctx cancellation is honored between retries.
func (lm *LockManager) Acquire(ctx context.Context, tid TransactionID, pid tuple.PageID, mode LockMode) error {
	key := pid.String()
	retry := 0
	for {
		ok, err := lm.tryAcquire(tid, key, pid, mode, retry)
		if err != nil {
			return err
		}
		if ok {
			lm.mu.Lock()
			delete(lm.waitsFor, tid)
			lm.mu.Unlock()
			return nil
		}

		if retry == lm.timeoutAt {
			lm.log.WithFields(logrus.Fields{"tid": tid, "page": key}).Warn("lock wait timed out")
			return dberrors.TimeoutAborted
		}
		if retry == lm.deadlockDetectAt {
			if cycle := lm.detectDeadlock(); cycle {
				lm.log.WithFields(logrus.Fields{"tid": tid, "page": key}).Warn("deadlock detected among waiters")
				return dberrors.DeadlockAborted
			}
		}
		retry++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lm.randomBackoff()):
		}
	}
}

func (lm *LockManager) randomBackoff() time.Duration {
	span := int64(lm.retryMax - lm.retryMin)
	if span <= 0 {
		return lm.retryMin
	}
	return lm.retryMin + time.Duration(rand.Int63n(span+1))
}

// tryAcquire makes one non-blocking attempt to grant the lock,
// recording tid's current wait set on its first attempt so a
// concurrent detectDeadlock call can see it.
func (lm *LockManager) tryAcquire(tid TransactionID, key string, pid tuple.PageID, mode LockMode, retry int) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	held := lm.locks[key]

	for _, l := range held {
		if l.tid == tid && l.mode == mode {
			return true, nil
		}
	}
	// Already holding EXCLUSIVE covers any SHARED request too.
	if mode == Shared {
		for _, l := range held {
			if l.tid == tid && l.mode == Exclusive {
				return true, nil
			}
		}
	}

	if retry == 0 {
		waiting := make(map[TransactionID]struct{}, len(held))
		for _, l := range held {
			if l.tid != tid {
				waiting[l.tid] = struct{}{}
			}
		}
		lm.waitsFor[tid] = waiting
	}

	switch {
	case len(held) == 0:
		lm.locks[key] = append(held, heldLock{tid: tid, mode: mode})
		return true, nil

	case mode == Shared && held[0].mode == Shared:
		lm.locks[key] = append(held, heldLock{tid: tid, mode: mode})
		return true, nil

	case mode == Exclusive && len(held) == 1 && held[0].tid == tid && held[0].mode == Shared:
		lm.locks[key][0].mode = Exclusive
		return true, nil

	default:
		return false, nil
	}
}

// detectDeadlock rebuilds the current waits-for graph's in-degrees and
// peels off every transaction that isn't waited on by anyone
// (Kahn's algorithm); anything left over once no more zero-in-degree
// nodes remain is part of a cycle.
func (lm *LockManager) detectDeadlock() bool {
	lm.mu.Lock()
	graph := make(map[TransactionID]map[TransactionID]struct{}, len(lm.waitsFor))
	inDegree := make(map[TransactionID]int, len(lm.waitsFor))
	for tid, waits := range lm.waitsFor {
		graph[tid] = waits
		if _, ok := inDegree[tid]; !ok {
			inDegree[tid] = 0
		}
		for other := range waits {
			inDegree[other]++
		}
	}
	lm.mu.Unlock()

	queue := make([]TransactionID, 0, len(inDegree))
	for tid, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, tid)
		}
	}
	removed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		removed++
		for other := range graph[n] {
			inDegree[other]--
			if inDegree[other] == 0 {
				queue = append(queue, other)
			}
		}
	}
	return removed < len(inDegree)
}

// Release drops tid's lock on pid, if any.
func (lm *LockManager) Release(tid TransactionID, pid tuple.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	key := pid.String()
	kept := lm.locks[key][:0]
	for _, l := range lm.locks[key] {
		if l.tid != tid {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(lm.locks, key)
	} else {
		lm.locks[key] = kept
	}
}

// ReleaseAll drops every lock tid holds, used at transaction-complete
// time.
func (lm *LockManager) ReleaseAll(tid TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for key, held := range lm.locks {
		kept := held[:0]
		for _, l := range held {
			if l.tid != tid {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(lm.locks, key)
		} else {
			lm.locks[key] = kept
		}
	}
	delete(lm.waitsFor, tid)
}

// HoldsLock reports whether tid holds any lock on pid.
func (lm *LockManager) HoldsLock(tid TransactionID, pid tuple.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, l := range lm.locks[pid.String()] {
		if l.tid == tid {
			return true
		}
	}
	return false
}

// PageIsLocked reports whether any transaction holds a lock on pid.
func (lm *LockManager) PageIsLocked(pid tuple.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks[pid.String()]) > 0
}
