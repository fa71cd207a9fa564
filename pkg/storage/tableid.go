package storage

import (
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// TableID derives the stable identifier for the file at path: the
// xxhash of its absolute, cleaned form. Two HeapFiles opened against
// the same underlying file, in the same process or a different one,
// always agree on this value, which is what lets PageIDs compare equal
// across separate opens of the same table.
func TableID(path string) (uint64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve absolute path for %q", path)
	}
	return xxhash.Sum64String(filepath.Clean(abs)), nil
}
