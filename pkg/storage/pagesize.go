package storage

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultPageSize is used unless internal/config overrides it before
// the first heap file is opened.
const DefaultPageSize = 4096

var (
	pageSizeMu   sync.Mutex
	pageSize     = DefaultPageSize
	pageSizeUsed bool
)

// PageSize returns the page size every HeapFile and BTreeFile in this
// process will use. It is a process-wide setting, not a per-file one,
// because two tables must agree on page size to share a buffer pool.
func PageSize() int {
	pageSizeMu.Lock()
	defer pageSizeMu.Unlock()
	pageSizeUsed = true
	return pageSize
}

// SetPageSize overrides the page size. It must be called before any
// file is opened; once a page size has been read by PageSize it is
// frozen for the remainder of the process, matching the "fixed at
// startup" configuration contract.
func SetPageSize(n int) error {
	pageSizeMu.Lock()
	defer pageSizeMu.Unlock()
	if pageSizeUsed {
		return errors.Newf("storage: cannot change page size to %d, already in use as %d", n, pageSize)
	}
	if n <= 0 {
		return errors.Newf("storage: invalid page size %d", n)
	}
	pageSize = n
	return nil
}
