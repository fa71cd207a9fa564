// Package config loads the engine's tunables (spec.md §6: page size,
// pool capacity, old-list fraction, promotion age, lock retry
// interval, retry limit) from an optional HCL file, layered over
// built-in defaults — modeled on leftmike-maho.v1/config's typed
// parameter registry, but using github.com/hashicorp/hcl for the file
// format instead of a hand-rolled scanner.
package config

import (
	"os"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/sirupsen/logrus"

	"github.com/latticedb/lattice/pkg/storage"
)

// Config holds every tunable the engine reads at startup. Durations
// are stored as milliseconds in the HCL file (plain integers), since
// hcl's decoder does not parse Go duration strings.
type Config struct {
	PageSize int `hcl:"page_size"`

	PoolCapacity    int     `hcl:"pool_capacity"`
	OldListFraction float64 `hcl:"old_list_fraction"`
	PromotionAgeMs  int     `hcl:"promotion_age_ms"`

	LockRetryMinMs      int `hcl:"lock_retry_min_ms"`
	LockRetryMaxMs      int `hcl:"lock_retry_max_ms"`
	DeadlockDetectRetry int `hcl:"deadlock_detect_retry"`
	TimeoutAbortRetry   int `hcl:"timeout_abort_retry"`

	LogLevel string `hcl:"log_level"`
}

// Default returns the built-in tunables, matching the constants
// already hard-coded in pkg/buffer and pkg/txn.
func Default() *Config {
	return &Config{
		PageSize:            storage.DefaultPageSize,
		PoolCapacity:        50,
		OldListFraction:     0.2,
		PromotionAgeMs:      1000,
		LockRetryMinMs:      200,
		LockRetryMaxMs:      500,
		DeadlockDetectRetry: 1,
		TimeoutAbortRetry:   5,
		LogLevel:            "info",
	}
}

// Load reads path (if non-empty and it exists) as HCL, overriding
// Default()'s fields with whatever the file sets; a missing path is
// not an error, mirroring the teacher's "no config file" startup path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := hcl.Decode(cfg, string(data)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PromotionAge is PromotionAgeMs as a time.Duration.
func (c *Config) PromotionAge() time.Duration {
	return time.Duration(c.PromotionAgeMs) * time.Millisecond
}

func (c *Config) LockRetryMin() time.Duration {
	return time.Duration(c.LockRetryMinMs) * time.Millisecond
}

func (c *Config) LockRetryMax() time.Duration {
	return time.Duration(c.LockRetryMaxMs) * time.Millisecond
}

// ApplyPageSize sets the process-wide page size to c.PageSize; the
// size freezes the first time storage.PageSize() is read. It
// must be called before any HeapFile or BTreeFile is opened, since
// storage.SetPageSize panics-equivalent (returns an error) once any
// file has already read the size.
func (c *Config) ApplyPageSize() error {
	return storage.SetPageSize(c.PageSize)
}

// NewLogger builds the logrus.Logger every package in this repository
// logs diagnostic (non-fatal) events through, per SPEC_FULL.md's
// ambient logging section.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
