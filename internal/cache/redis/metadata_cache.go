package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// MetadataCache implements domain.MetadataCache using Redis hashes with a
// JSON-serialized entry.
//
// Key schema:
//
//	{prefix}:meta:{contract}:{tokenID} - hash with field "data" containing JSON
type MetadataCache struct {
	c   *Client
	ttl time.Duration
}

// NewMetadataCache creates a MetadataCache. Entries expire after ttl; zero
// keeps them forever (freshness is still judged by the resolver).
func NewMetadataCache(c *Client, ttl time.Duration) *MetadataCache {
	return &MetadataCache{c: c, ttl: ttl}
}

func (mc *MetadataCache) entryKey(contract, tokenID string) string {
	return mc.c.key("meta", strings.ToLower(contract), tokenID)
}

// Set stores the entry for (contract, tokenID).
func (mc *MetadataCache) Set(ctx context.Context, contract, tokenID string, entry domain.MetadataCacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal metadata %s: %w", tokenID, err)
	}

	key := mc.entryKey(contract, tokenID)
	pipe := mc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	if mc.ttl > 0 {
		pipe.Expire(ctx, key, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set metadata %s: %w", tokenID, err)
	}
	return nil
}

// Get retrieves the entry for (contract, tokenID).
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MetadataCache) Get(ctx context.Context, contract, tokenID string) (domain.MetadataCacheEntry, error) {
	data, err := mc.c.rdb.HGet(ctx, mc.entryKey(contract, tokenID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MetadataCacheEntry{}, domain.ErrNotFound
		}
		return domain.MetadataCacheEntry{}, fmt.Errorf("redis: get metadata %s: %w", tokenID, err)
	}

	var entry domain.MetadataCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.MetadataCacheEntry{}, fmt.Errorf("redis: unmarshal metadata %s: %w", tokenID, err)
	}
	return entry, nil
}

// Compile-time interface check.
var _ domain.MetadataCache = (*MetadataCache)(nil)
