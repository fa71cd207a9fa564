package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/pkg/storage"
)

func TestDefaultMatchesHardCodedConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, storage.DefaultPageSize, cfg.PageSize)
	assert.Equal(t, 50, cfg.PoolCapacity)
	assert.Equal(t, 0.2, cfg.OldListFraction)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hcl"))
	assert.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesFieldsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kitedb.hcl")
	body := `
page_size = 8192
pool_capacity = 200
old_list_fraction = 0.3
promotion_age_ms = 2000
lock_retry_min_ms = 50
lock_retry_max_ms = 150
deadlock_detect_retry = 2
timeout_abort_retry = 8
log_level = "debug"
`
	assert.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 8192, cfg.PageSize)
	assert.Equal(t, 200, cfg.PoolCapacity)
	assert.Equal(t, 0.3, cfg.OldListFraction)
	assert.Equal(t, 2000, cfg.PromotionAgeMs)
	assert.Equal(t, 50, cfg.LockRetryMinMs)
	assert.Equal(t, 150, cfg.LockRetryMaxMs)
	assert.Equal(t, 2, cfg.DeadlockDetectRetry)
	assert.Equal(t, 8, cfg.TimeoutAbortRetry)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadWithMalformedHCLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.hcl")
	assert.NoError(t, os.WriteFile(path, []byte("page_size = ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := &Config{
		PromotionAgeMs: 1500,
		LockRetryMinMs: 20,
		LockRetryMaxMs: 80,
	}
	assert.Equal(t, 1500*time.Millisecond, cfg.PromotionAge())
	assert.Equal(t, 20*time.Millisecond, cfg.LockRetryMin())
	assert.Equal(t, 80*time.Millisecond, cfg.LockRetryMax())
}

func TestNewLoggerUsesConfiguredLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	log := cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestNewLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "not-a-real-level"
	log := cfg.NewLogger()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

// TestApplyPageSizeFreezesProcessWideSize must run before anything
// else in this package reads storage.PageSize(), since the page size
// can only be set once per process. It is declared last in this file
// and nothing above it reads PageSize(), so it is the first reader.
func TestApplyPageSizeFreezesProcessWideSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 2048
	assert.NoError(t, cfg.ApplyPageSize())
	assert.Equal(t, 2048, storage.PageSize())

	err := cfg.ApplyPageSize()
	assert.Error(t, err)
}
