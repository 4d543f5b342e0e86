package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// ByteCache implements domain.RemoteCache with plain SET/GET and per-key
// expiry. It is the shared tier in front of snapshot builds so several
// replicas reuse one build.
//
// Key schema:
//
//	{prefix}:cache:{key} - string value
type ByteCache struct {
	c *Client
}

// NewByteCache creates a ByteCache backed by the given Client.
func NewByteCache(c *Client) *ByteCache {
	return &ByteCache{c: c}
}

// Get returns the cached value or domain.ErrNotFound.
func (bc *ByteCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := bc.c.rdb.Get(ctx, bc.c.key("cache", key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key for ttl.
func (bc *ByteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := bc.c.rdb.Set(ctx, bc.c.key("cache", key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

var _ domain.RemoteCache = (*ByteCache)(nil)
