// Package cache holds the Redis-backed helpers: idempotency keys for booking
// submissions, short-lived locks and a small JSON cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"stay-booking/pkg/utils"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "stay:"

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg utils.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
