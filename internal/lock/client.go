package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

// NewRedisClient connects to Redis and checks that lock keys can be written.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	probe := keyPrefix + "probe"
	if err := client.Set(ctx, probe, "ok", 5*time.Second).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("write probe key: %w", err)
	}

	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s for slot and scan locks", cfg.Addr))
	return client, nil
}

// New picks the Redis locker when enabled, the in-process one otherwise.
func New(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (Locker, func() error, error) {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, using in-process locks (single replica only)")
		return NewLocalLocker(cfg.LockWait), func() error { return nil }, nil
	}
	client, err := NewRedisClient(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisLocker(client, cfg.LockTTL, cfg.LockWait), client.Close, nil
}
