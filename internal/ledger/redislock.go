package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rezonia/stock-intake/internal/model"
)

const redisLockPrefix = "stock-intake:lock:"

// RedisLocker is a Locker shared by every process using the same Redis
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewRedisLocker creates a locker whose locks expire after ttl
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		retries: int(ttl / (50 * time.Millisecond)),
		backoff: 50 * time.Millisecond,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.backoff), r.retries),
	}
	lock, err := r.client.Obtain(ctx, redisLockPrefix+key, r.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: lock %s not obtained", model.ErrLedgerUnavailable, key)
	} else if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", model.ErrLedgerUnavailable, key, err)
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
