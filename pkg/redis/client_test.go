package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// newTestClient connects to TEST_REDIS_ADDR and skips the test when Redis is
// unavailable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping redis test: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLockExclusiveAndRelease(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "configsync-test:" + uuid.NewString()

	lock, err := c.AcquireLock(ctx, key, "run-a", time.Minute)
	require.NoError(t, err)

	_, err = c.AcquireLock(ctx, key, "run-b", time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrLockHeld)

	require.NoError(t, lock.Release(ctx))
	other, err := c.AcquireLock(ctx, key, "run-b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestKeepAliveOutlivesTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "configsync-test:" + uuid.NewString()

	lock, err := c.AcquireLock(ctx, key, "run-a", 300*time.Millisecond)
	require.NoError(t, err)
	runCtx, stop := lock.KeepAlive(ctx, nil)

	time.Sleep(time.Second)
	require.NoError(t, runCtx.Err())
	_, err = c.AcquireLock(ctx, key, "run-b", time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrLockHeld)

	stop()
	require.NoError(t, lock.Release(ctx))
}

func TestKeepAliveCancelsWhenLockLost(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "configsync-test:" + uuid.NewString()

	lock, err := c.AcquireLock(ctx, key, "run-a", 300*time.Millisecond)
	require.NoError(t, err)
	runCtx, stop := lock.KeepAlive(ctx, nil)
	defer stop()

	require.NoError(t, c.rdb.Set(ctx, key, "run-b", time.Minute).Err())
	t.Cleanup(func() { c.rdb.Del(context.Background(), key) })

	select {
	case <-runCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run context not cancelled after the lock changed hands")
	}
	assert.ErrorIs(t, context.Cause(runCtx), apperrors.ErrLockLost)
	assert.ErrorIs(t, lock.Extend(ctx), apperrors.ErrLockLost)
}
