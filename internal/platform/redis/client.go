// Package redis holds the optional cache backend used by the audit facet
// cache. The backend is absent, not degraded, when no URL is configured.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"veritrail/internal/platform/config"
)

// Client embeds the go-redis client so callers keep its full command surface.
type Client struct {
	*redis.Client
}

// New dials Redis and verifies the connection. A nil client with a nil error
// means Redis is not configured; callers treat that as cache-off.
func New(cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{Client: client}, nil
}
