package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Alert event types.
const (
	EventSnapshotStale = "snapshot_stale"
	EventSnapshotEmpty = "snapshot_empty"
)

// UpdatesChannel is the bus channel refreshed snapshot summaries are
// published on.
const UpdatesChannel = "snapshots"

// Update is the bus envelope of a refreshed snapshot.
type Update struct {
	Sport   domain.Sport         `json:"sport"`
	AsOf    int64                `json:"asOf"`
	State   domain.BuildState    `json:"state"`
	Summary domain.MarketSummary `json:"summary"`
}

// NewUpdate builds the envelope for snap.
func NewUpdate(snap *domain.MarketSnapshot) Update {
	return Update{Sport: snap.Sport, AsOf: snap.AsOf, State: snap.State, Summary: snap.Summary}
}

func (s *Service) saveLastGood(ctx context.Context, snap *domain.MarketSnapshot, logger *slog.Logger) {
	if s.deps.LastGood == nil {
		return
	}
	if err := s.deps.LastGood.Save(ctx, snap); err != nil {
		logger.WarnContext(ctx, "saving last good snapshot failed", slog.String("error", err.Error()))
	}
}

func (s *Service) recordHistory(ctx context.Context, buildID string, snap *domain.MarketSnapshot, logger *slog.Logger) {
	if s.deps.History == nil {
		return
	}
	rec := domain.SnapshotRecord{
		BuildID:            buildID,
		Sport:              snap.Sport,
		State:              snap.State,
		AsOf:               time.UnixMilli(snap.AsOf).UTC(),
		WindowHours:        snap.WindowHours,
		TotalTokens:        snap.Summary.TotalTokens,
		ActiveTokens:       snap.Summary.ActiveTokens,
		Trades:             snap.Summary.Trades24h,
		VolumeSharesRaw:    snap.Summary.Volume24hSharesRaw,
		AvgPriceUsdcRaw:    snap.Summary.AvgPriceUsdcRaw,
		MedianPriceUsdcRaw: snap.Summary.MedianPriceUsdcRaw,
		UniqueTraders:      snap.Summary.UniqueTraders24h,
	}
	if err := s.deps.History.Insert(ctx, rec); err != nil {
		logger.WarnContext(ctx, "recording snapshot history failed", slog.String("error", err.Error()))
	}
}

// alert notifies operators when a build had to fall back.
func (s *Service) alert(ctx context.Context, snap *domain.MarketSnapshot, logger *slog.Logger) {
	if s.deps.Alerts == nil {
		return
	}
	var event string
	switch snap.State {
	case domain.BuildStateDegradedUsingStale, domain.BuildStateFailedUsingStale:
		event = EventSnapshotStale
	case domain.BuildStateFailedEmpty:
		event = EventSnapshotEmpty
	default:
		return
	}
	title := fmt.Sprintf("Sport.fun %s snapshot %s", snap.Sport, snap.State)
	msg := fmt.Sprintf("Serving snapshot as of %s with %d tokens and %d trades.",
		time.UnixMilli(snap.AsOf).UTC().Format(time.RFC3339), len(snap.Tokens), snap.Summary.Trades24h)
	if err := s.deps.Alerts.Notify(ctx, event, title, msg); err != nil {
		logger.WarnContext(ctx, "alert delivery failed", slog.String("error", err.Error()))
	}
}
