package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sahasand/site-tracker/pkg/config"
)

const pingTimeout = 3 * time.Second

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Connect returns a client that answered PING. The worker treats Redis as
// optional, so callers may keep the client even when err is non-nil.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := NewRedisClient(cfg)
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return rdb, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
