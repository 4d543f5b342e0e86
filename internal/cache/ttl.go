// Package cache provides the TTL cache placed in front of expensive builds. A
// value is looked up in memory, then in an optional shared remote tier, then
// on disk; on a miss the loader runs once per key no matter how many callers
// are waiting for it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

type memEntry struct {
	data    []byte
	expires time.Time
}

type diskEntry struct {
	ExpiresAt int64           `json:"expiresAt"`
	Value     json.RawMessage `json:"value"`
}

// Store holds the tiers. The zero value is not usable; call New.
type Store struct {
	dir    string
	remote domain.RemoteCache
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	mem   map[string]memEntry
	group singleflight.Group
}

// New creates a Store. dir may be empty to disable the disk tier and remote
// may be nil to disable the shared tier.
func New(dir string, remote domain.RemoteCache, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		remote: remote,
		logger: logger.With(slog.String("component", "ttl_cache")),
		now:    time.Now,
		mem:    make(map[string]memEntry),
	}
}

// WithCache returns the value cached under key if it is younger than ttl,
// otherwise it runs loader, caches the result in every tier and returns it.
// Concurrent misses for the same key share one loader call. Loader errors are
// not cached.
//
// The loader runs detached from ctx cancellation: a caller that gives up gets
// ctx.Err() back while the shared load carries on and fills the cache for
// everyone else.
func WithCache[T any](ctx context.Context, s *Store, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if data, ok := s.lookup(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		// Another flight may have filled the cache while we queued.
		if data, ok := s.lookup(flightCtx, key); ok {
			return data, nil
		}
		v, err := loader(flightCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cache: marshal %s: %w", key, err)
		}
		s.store(flightCtx, key, data, ttl)
		return data, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var v T
	if err := json.Unmarshal(res.Val.([]byte), &v); err != nil {
		return zero, fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) lookup(ctx context.Context, key string) ([]byte, bool) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.mem[key]
	if ok && now.After(e.expires) {
		delete(s.mem, key)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return e.data, true
	}

	if s.remote != nil {
		data, err := s.remote.Get(ctx, key)
		switch {
		case err == nil:
			// Remote expiry is authoritative; keep a short local copy.
			s.setMem(key, data, now.Add(5*time.Second))
			return data, true
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("remote cache get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.dir != "" {
		raw, err := os.ReadFile(s.path(key))
		if err == nil {
			var de diskEntry
			if json.Unmarshal(raw, &de) == nil && now.UnixMilli() < de.ExpiresAt {
				s.setMem(key, de.Value, time.UnixMilli(de.ExpiresAt))
				return de.Value, true
			}
		}
	}
	return nil, false
}

func (s *Store) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	expires := s.now().Add(ttl)
	s.setMem(key, data, expires)

	if s.remote != nil {
		if err := s.remote.Set(ctx, key, data, ttl); err != nil {
			s.logger.Warn("remote cache set failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.dir != "" {
		if err := s.writeDisk(key, diskEntry{ExpiresAt: expires.UnixMilli(), Value: data}); err != nil {
			s.logger.Warn("disk cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Store) setMem(key string, data []byte, expires time.Time) {
	s.mu.Lock()
	s.mem[key] = memEntry{data: data, expires: expires}
	s.mu.Unlock()
}

func (s *Store) writeDisk(key string, e diskEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(key), raw, 0o644)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, "cache-"+crypto.Keccak256Hash([]byte(key)).Hex()[2:18]+".json")
}
