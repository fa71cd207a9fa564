package btree

import (
	"os"
	"testing"

	"github.com/latticedb/lattice/pkg/storage"
)

// TestMain pins the process-wide page size to a small value before any
// test opens a file, so a handful of tuples is enough to force real
// leaf and internal splits without needing thousands of inserts.
func TestMain(m *testing.M) {
	if err := storage.SetPageSize(160); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
