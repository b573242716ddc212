// Package redisstore is the Redis cache store driver: one hash per namespace
// plus a set indexing the namespace names.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// FromConfig maps the REDIS_* settings onto options; zero values keep the defaults.
func FromConfig(cfg config.Config) []Option {
	var opts []Option
	if cfg.RedisPoolSize > 0 {
		opts = append(opts, WithPoolSize(cfg.RedisPoolSize))
	}
	if cfg.RedisDialTimeout > 0 {
		opts = append(opts, WithDialTimeout(cfg.RedisDialTimeout))
	}
	if cfg.RedisReadTimeout > 0 {
		opts = append(opts, WithReadTimeout(cfg.RedisReadTimeout))
	}
	if cfg.RedisWriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(cfg.RedisWriteTimeout))
	}
	return opts
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// HGet returns (nil, false, nil) when the field is absent.
func (c *Client) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	b, err := c.rdb.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis HGET %q: %w", key, err)
	}
	return b, true, nil
}

// HSetIndexed writes fields into hash key and records member in the index set,
// in one MULTI/EXEC.
func (c *Client) HSetIndexed(ctx context.Context, index, member, key string, fields map[string][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(fields))
	for f, v := range fields {
		args = append(args, f, v)
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, index, member)
		p.HSet(ctx, key, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis HSET %q (%d fields): %w", key, len(fields), err)
	}
	return nil
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("redis HDEL %q: %w", key, err)
	}
	return nil
}

func (c *Client) SAdd(ctx context.Context, key, member string) error {
	if err := c.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis SADD %q: %w", key, err)
	}
	return nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	out, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", key, err)
	}
	return out, nil
}

// DropIndexed deletes hash key and removes member from the index set. It
// reports whether member was indexed.
func (c *Client) DropIndexed(ctx context.Context, index, member, key string) (bool, error) {
	var srem *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		srem = p.SRem(ctx, index, member)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis drop %q: %w", key, err)
	}
	return srem.Val() > 0, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
