package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shareit/internal/config"

	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a client from the redis section of the config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisRateLimiter counts requests per user in fixed windows shared by every API replica.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "shareit:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func (r *RedisRateLimiter) key(userID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, userID)
}

func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	key := r.key(userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errNilClient
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
