package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// RedisLocker is a distributed Locker for multi-instance deployments.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
	log     *logger.Logger
}

// NewRedisLocker creates a RedisLocker over rdb. ttl bounds how long a lock
// outlives a crashed holder; wait bounds how long Obtain retries.
func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		wait:    wait,
		backoff: 25 * time.Millisecond,
		log:     log.Named("redis-locker"),
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Release, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.ExponentialBackoff(l.backoff, 500*time.Millisecond),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: lock %s not obtained within %s", workflow.ErrBusy, key, l.wait)
		}
		return nil, fmt.Errorf("%w: redis lock %s: %v", workflow.ErrBusy, key, err)
	}

	return func() {
		// Release must run even when the request context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn().Err(err).Str("key", key).Msg("Failed to release redis lock")
		}
	}, nil
}

// NewRedisClient connects to Redis and verifies it with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}
