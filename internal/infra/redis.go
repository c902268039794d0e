package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accounts/internal/config"
)

// NewRedisClient builds the client used for idempotency records and the
// shared login rate limit, then verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	applyRedisLimits(opt, cfg)

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}

	if logger != nil {
		logger.Info("redis connected", slog.String("addr", opt.Addr), slog.Int("db", opt.DB), slog.Int("pool_size", opt.PoolSize))
	}
	return client, nil
}

func applyRedisLimits(opt *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
}
