package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
)

type buildFunc func(ctx context.Context, opts snapshot.Options) (*domain.MarketSnapshot, error)

type snapshotGetter interface {
	GetMarketSnapshot(ctx context.Context, opts snapshot.Options) (*domain.MarketSnapshot, error)
}

// refresher rebuilds each sport on an interval through the cached entry
// point and publishes a summary of every result to the snapshot bus.
type refresher struct {
	snapshots snapshotGetter
	bus       domain.SnapshotBus
	sports    []domain.Sport
	interval  time.Duration
	logger    *slog.Logger
}

func newRefresher(snapshots snapshotGetter, bus domain.SnapshotBus, sports []domain.Sport, interval time.Duration, logger *slog.Logger) *refresher {
	return &refresher{
		snapshots: snapshots,
		bus:       bus,
		sports:    sports,
		interval:  interval,
		logger:    logger.With(slog.String("component", "refresher")),
	}
}

func (r *refresher) run(ctx context.Context) error {
	if r.interval <= 0 {
		r.interval = 2 * time.Minute
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.refreshAll(ctx, r.snapshots.GetMarketSnapshot)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refreshAll builds every sport in turn and returns how many ended without
// live data.
func (r *refresher) refreshAll(ctx context.Context, build buildFunc) int {
	failed := 0
	for _, sport := range r.sports {
		if ctx.Err() != nil {
			return failed
		}
		start := time.Now()
		snap, err := build(ctx, snapshot.Options{Sport: sport})
		if err != nil {
			r.logger.ErrorContext(ctx, "refresh failed",
				slog.String("sport", sport.String()),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		if snap.State == domain.BuildStateFailedEmpty || snap.State == domain.BuildStateFailedUsingStale {
			failed++
		}
		r.logger.InfoContext(ctx, "snapshot refreshed",
			slog.String("sport", sport.String()),
			slog.String("state", string(snap.State)),
			slog.Int("tokens", len(snap.Tokens)),
			slog.Int("trades", snap.Summary.Trades24h),
			slog.Duration("elapsed", time.Since(start)),
		)
		r.publish(ctx, snap)
	}
	return failed
}

func (r *refresher) publish(ctx context.Context, snap *domain.MarketSnapshot) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(snapshot.NewUpdate(snap))
	if err != nil {
		r.logger.ErrorContext(ctx, "encode update failed", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, snapshot.UpdatesChannel, payload); err != nil {
		r.logger.WarnContext(ctx, "publish update failed",
			slog.String("sport", snap.Sport.String()),
			slog.String("error", err.Error()),
		)
	}
}
