// Package redis connects the shared counters (decryption failure anomalies,
// public rate limits) to Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"keepsake/internal/platform/config"
)

type Client struct {
	*redis.Client
}

// New dials Redis and pings it once. It returns a nil client and no error when
// no URL is configured; callers then stay on their in-process counters.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

// options overlays non-zero pool and timeout settings on the URL's options.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.MinIdleConns = cfg.MinIdleConns
	overlay := []struct {
		set func()
		ok  bool
	}{
		{func() { opts.PoolSize = cfg.PoolSize }, cfg.PoolSize > 0},
		{func() { opts.DialTimeout = cfg.DialTimeout }, cfg.DialTimeout > 0},
		{func() { opts.ReadTimeout = cfg.ReadTimeout }, cfg.ReadTimeout > 0},
		{func() { opts.WriteTimeout = cfg.WriteTimeout }, cfg.WriteTimeout > 0},
	}
	for _, o := range overlay {
		if o.ok {
			o.set()
		}
	}
	return opts, nil
}

// Health is registered as the "redis" readiness check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
