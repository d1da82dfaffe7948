// Package redis provides a thin wrapper around go-redis/v9 used to hold the
// single-instance run lock. Snapshot downloads share a working directory, so
// two runs against the same host must not overlap.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only if the caller still owns the
// lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Lock is a held run lock.
type Lock struct {
	client *Client
	key    string
	owner  string
	ttl    time.Duration
}

// AcquireLock takes key for owner with the given TTL. If another owner holds
// it, the returned error wraps ErrLockHeld.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (*Lock, error) {
	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		holder, _ := c.rdb.Get(ctx, key).Result()
		return nil, apperrors.Newf(apperrors.ErrLockHeld, 0, "lock %s held by %q", key, holder)
	}
	return &Lock{client: c, key: key, owner: owner, ttl: ttl}, nil
}

// Extend resets the lock's expiry to its full TTL. It fails with ErrLockLost
// when the lock expired or passed to another owner.
func (l *Lock) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extending lock %s: %w", l.key, err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrLockLost, 0, "lock %s no longer owned by %q", l.key, l.owner)
	}
	return nil
}

// KeepAlive extends the lock every third of its TTL until the returned cancel
// func is called. The returned context is cancelled with ErrLockLost as its
// cause if ownership is lost, so a run stops before it overlaps another.
// Failed extensions are logged and retried on the next tick.
func (l *Lock) KeepAlive(ctx context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	interval := l.ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := l.Extend(ctx)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrLockLost):
				logger.Error("run lock lost, stopping", "key", l.key, "error", err)
				cancel(err)
				return
			case ctx.Err() == nil:
				logger.Warn("failed to extend run lock", "key", l.key, "error", err)
			}
		}
	}()
	return ctx, func() {
		cancel(context.Canceled)
		<-done
	}
}

// Release drops the lock if it is still owned by this holder. A lock that
// expired and was taken by someone else is left alone.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
