// Package redis constructs the application's instrumented Redis client.
package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/smiletrip/smilecoin/pkg/config"
)

// Client embeds the go-redis client so callers use the full command surface
// directly; the wrapper exists to own construction and teardown.
type Client struct {
	*redis.Client
}

// New connects to Redis per cfg, attaches the Prometheus instrumentation
// hook, and fails fast when the initial ping does not come back.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.IdleTimeout,
		MaxRetries:      cfg.MaxRetries,
	})

	rdb.AddHook(newMetricsHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	return &Client{Client: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
