// Package dberrors holds the small, closed set of sentinel errors that
// cross package boundaries: callers in pkg/engine, pkg/storage,
// pkg/btree and pkg/txn all test against these with errors.Is rather
// than inventing their own per-package equivalents. Purely local
// validation errors (bad field index, schema string too long) stay
// next to the code that raises them instead of living here.
package dberrors

import "github.com/cockroachdb/errors"

var (
	// IoFailure wraps any error coming back from the filesystem layer
	// (open, read, write, mmap) so callers can recognize "this was a
	// disk problem" without caring about the underlying os error type.
	IoFailure = errors.New("i/o failure")

	// PageFull is returned by a page's InsertTuple when it has no
	// empty slot left.
	PageFull = errors.New("page is full")

	// SlotEmpty is returned when a caller addresses a slot index that
	// is not marked used in the page header.
	SlotEmpty = errors.New("slot is empty")

	// WrongPage is returned when a tuple or operation names a PageID
	// that does not match the page it is being applied against.
	WrongPage = errors.New("tuple does not belong to this page")

	// SchemaMismatch is returned when a tuple's TupleDesc does not
	// match the schema of the file or page it is being inserted into.
	SchemaMismatch = errors.New("tuple schema does not match file schema")

	// DeadlockAborted is returned to a transaction whose lock
	// acquisition was chosen as the victim of a detected wait cycle.
	DeadlockAborted = errors.New("transaction aborted: deadlock detected")

	// TimeoutAborted is returned to a transaction whose lock
	// acquisition exceeded the retry budget without a cycle ever
	// being detected.
	TimeoutAborted = errors.New("transaction aborted: lock wait timed out")

	// AllPagesDirty is returned by the buffer pool's eviction routine
	// when every cached page is dirty, so NO-STEAL leaves nothing
	// evictable.
	AllPagesDirty = errors.New("buffer pool exhausted: all pages dirty or locked")

	// NotFound is returned when a lookup (catalog table, B+-tree key,
	// record) has no matching entry.
	NotFound = errors.New("not found")
)
