// Package redis holds the shared client behind the auth session store. The
// rest of the service talks to stores, never to redis directly.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hzi-braunschweig/pia-system/internal/platform/config"
)

// Session lookups sit on the interactive registration path, so connection
// setup is bounded tighter than the go-redis defaults.
const (
	defaultPoolSize    = 10
	defaultDialTimeout = 5 * time.Second
	startupPingTimeout = 3 * time.Second
)

// Client wraps go-redis with the probe the health endpoint uses.
type Client struct {
	*redis.Client
}

// New connects using cfg and verifies the connection with a bounded ping.
// An empty URL returns (nil, nil); the caller then falls back to the
// in-memory session store.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
