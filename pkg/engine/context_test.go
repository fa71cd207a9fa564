package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latticedb/lattice/internal/config"
)

func TestNewBuildsContextWithGivenCapacity(t *testing.T) {
	ctx := New(10)
	assert.NotNil(t, ctx.Catalog)
	assert.NotNil(t, ctx.Pool)
	assert.NotNil(t, ctx.Locks)
}

func TestNewFromConfigWiresPoolAndLockOptions(t *testing.T) {
	cfg := config.Default()
	cfg.PoolCapacity = 12
	cfg.PromotionAgeMs = 500
	cfg.LockRetryMinMs = 10
	cfg.LockRetryMaxMs = 30
	cfg.DeadlockDetectRetry = 2
	cfg.TimeoutAbortRetry = 4

	ctx := NewFromConfig(cfg)
	assert.NotNil(t, ctx.Catalog)
	assert.NotNil(t, ctx.Pool)
	assert.NotNil(t, ctx.Locks)
	assert.Equal(t, 500*time.Millisecond, cfg.PromotionAge())
}
