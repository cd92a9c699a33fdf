package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "booking_lock:"

// Deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes SETNX locks with a TTL so a crashed holder cannot block a key forever.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{Client: client, TTL: ttl, Wait: wait, Retry: 25 * time.Millisecond}
}

// TryAcquire makes a single attempt and reports whether the key was taken.
func (r *RedisLocker) TryAcquire(ctx context.Context, key string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = r.Client.SetNX(ctx, keyPrefix+key, token, r.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return token, ok, nil
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(r.Wait)
	retry := r.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}

	for {
		token, ok, err := r.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() { _ = r.Release(context.Background(), key, token) })
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Release removes the lock if token still owns it.
func (r *RedisLocker) Release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, r.Client, []string{keyPrefix + key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

// IsLocked reports whether any holder currently owns key.
func (r *RedisLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
