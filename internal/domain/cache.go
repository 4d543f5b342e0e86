package domain

import (
	"context"
	"time"
)

// MetadataCache stores per-contract, per-token metadata resolution state.
// Get returns ErrNotFound when nothing is cached.
type MetadataCache interface {
	Get(ctx context.Context, contract, tokenID string) (MetadataCacheEntry, error)
	Set(ctx context.Context, contract, tokenID string, entry MetadataCacheEntry) error
}

// RemoteCache is an optional shared byte cache tier (e.g. Redis) used by the
// TTL cache in front of snapshot builds. Get returns ErrNotFound on a miss.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SnapshotBus fans out snapshot notifications to interested subscribers.
type SnapshotBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
