package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"golang.org/x/sync/errgroup"
)

const (
	maxSearchIterations = 40
	timestampWorkers    = 6
	timestampMemoSize   = 1 << 16
)

type targetEntry struct {
	block   uint64
	expires time.Time
}

// BlockLocator maps wall-clock times to block numbers. Block timestamps are
// memoized without expiry; target lookups are memoized per second for
// targetTTL because the head keeps moving.
type BlockLocator struct {
	node      Caller
	targetTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time

	timestamps *lru.Cache[uint64, int64]

	mu      sync.Mutex
	targets map[int64]targetEntry
}

// NewBlockLocator creates a locator over node.
func NewBlockLocator(node Caller, targetTTL time.Duration, logger *slog.Logger) *BlockLocator {
	if targetTTL <= 0 {
		targetTTL = time.Minute
	}
	return &BlockLocator{
		node:       node,
		targetTTL:  targetTTL,
		logger:     logger.With(slog.String("component", "block_locator")),
		now:        time.Now,
		timestamps: lru.NewCache[uint64, int64](timestampMemoSize),
		targets:    make(map[int64]targetEntry),
	}
}

// Head returns the current chain head. It is never cached.
func (l *BlockLocator) Head(ctx context.Context) (uint64, error) {
	return BlockNumber(ctx, l.node)
}

// Timestamp returns the timestamp of block n in milliseconds.
func (l *BlockLocator) Timestamp(ctx context.Context, n uint64) (int64, error) {
	if ts, ok := l.timestamps.Get(n); ok {
		return ts, nil
	}
	ts, err := BlockTimestampMs(ctx, l.node, n)
	if err != nil {
		return 0, err
	}
	l.timestamps.Add(n, ts)
	return ts, nil
}

// Timestamps resolves the timestamps of the distinct blocks in blocks using a
// bounded worker pool.
func (l *BlockLocator) Timestamps(ctx context.Context, blocks []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(blocks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(timestampWorkers)
	for _, n := range blocks {
		mu.Lock()
		_, seen := out[n]
		if !seen {
			out[n] = 0
		}
		mu.Unlock()
		if seen {
			continue
		}
		g.Go(func() error {
			ts, err := l.Timestamp(gctx, n)
			if err != nil {
				return err
			}
			mu.Lock()
			out[n] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chain: block timestamps: %w", err)
	}
	return out, nil
}

// FindBlockByTimestamp returns the first block whose timestamp is at or after
// targetMs, at one-second resolution. Targets at or before genesis map to
// block 0 and targets after the head map to the head. The head is re-read on
// every uncached call.
func (l *BlockLocator) FindBlockByTimestamp(ctx context.Context, targetMs int64) (uint64, error) {
	key := targetMs / 1000
	if b, ok := l.cachedTarget(key); ok {
		return b, nil
	}
	targetMs = key * 1000

	latest, err := BlockNumber(ctx, l.node)
	if err != nil {
		return 0, err
	}

	block, err := l.search(ctx, targetMs, latest)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.targets[key] = targetEntry{block: block, expires: l.now().Add(l.targetTTL)}
	l.mu.Unlock()
	return block, nil
}

func (l *BlockLocator) search(ctx context.Context, targetMs int64, latest uint64) (uint64, error) {
	genesis, err := l.Timestamp(ctx, 0)
	if err != nil {
		return 0, err
	}
	if targetMs <= genesis {
		return 0, nil
	}
	head, err := l.Timestamp(ctx, latest)
	if err != nil {
		return 0, err
	}
	if targetMs > head {
		return latest, nil
	}

	// ts(low) < target <= ts(high)
	low, high := uint64(0), latest
	for i := 0; i < maxSearchIterations && high-low > 1; i++ {
		mid := low + (high-low)/2
		ts, err := l.Timestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts < targetMs {
			low = mid
		} else {
			high = mid
		}
	}
	if high-low > 1 {
		l.logger.WarnContext(ctx, "block search hit iteration cap",
			slog.Int64("target_ms", targetMs),
			slog.Uint64("low", low),
			slog.Uint64("high", high),
		)
	}
	return high, nil
}

func (l *BlockLocator) cachedTarget(key int64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.targets[key]
	if !ok {
		return 0, false
	}
	if l.now().After(e.expires) {
		delete(l.targets, key)
		return 0, false
	}
	return e.block, true
}
