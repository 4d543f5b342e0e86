// Package snapshot builds the per-sport market snapshot: trade activity over
// a window, the full token catalogue with current prices and metadata, and
// the summary, trend and distribution views derived from them. A build that
// fails or looks degraded falls back to the last persisted good snapshot.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/sportfun/internal/cache"
	"github.com/alanyoungcy/sportfun/internal/domain"
)

// BlockSource resolves block boundaries and timestamps.
type BlockSource interface {
	Head(ctx context.Context) (uint64, error)
	FindBlockByTimestamp(ctx context.Context, targetMs int64) (uint64, error)
	Timestamps(ctx context.Context, blocks []uint64) (map[uint64]int64, error)
}

// LogSource fetches logs over a block range.
type LogSource interface {
	FetchLogs(ctx context.Context, addresses []common.Address, topic0s []common.Hash, from, to uint64) ([]types.Log, error)
}

// UniverseSource lists every token id ever traded for a sport.
type UniverseSource interface {
	GetTokenUniverse(ctx context.Context, sport domain.Sport, lookbackDays int) ([]string, error)
}

// PriceQuoter reads current AMM prices. It may return partial results
// together with an error.
type PriceQuoter interface {
	QuotePrices(ctx context.Context, market common.Address, ids []*big.Int) (map[string]*big.Int, error)
}

// MetadataSource resolves token metadata.
type MetadataSource interface {
	GetMetadata(ctx context.Context, contract, tokenID string) (*domain.TokenMetadata, error)
	Cached(ctx context.Context, contract, tokenID string) *domain.TokenMetadata
	Flush(ctx context.Context) error
}

// FallbackSource is the external player feed.
type FallbackSource interface {
	Players(ctx context.Context, sport domain.Sport) (*domain.FallbackFeed, error)
}

// NameOverrides is the manual display-name table.
type NameOverrides interface {
	Lookup(contract, tokenID string) (string, bool)
}

// Alerter delivers operator notifications for a given event type.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Contracts is the per-sport contract set.
type Contracts struct {
	Trade        common.Address
	PlayerToken  common.Address
	Market       common.Address
	LookbackDays int
	FallbackFeed bool
}

// Config holds the service settings.
type Config struct {
	SnapshotTTL         time.Duration
	LastGoodMaxAge      time.Duration
	MetadataConcurrency int
	Defaults            Options
	Sports              map[domain.Sport]Contracts
}

// Deps are the collaborators of a Service. Fallback, Overrides, Cache,
// History and Alerts are optional.
type Deps struct {
	Blocks    BlockSource
	Logs      LogSource
	Universe  UniverseSource
	Prices    PriceQuoter
	Metadata  MetadataSource
	Fallback  FallbackSource
	Overrides NameOverrides
	Cache     *cache.Store
	LastGood  *LastGoodStore
	History   domain.SnapshotHistoryStore
	Alerts    Alerter
}

// Service produces market snapshots.
type Service struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 120 * time.Second
	}
	if cfg.LastGoodMaxAge <= 0 {
		cfg.LastGoodMaxAge = 24 * time.Hour
	}
	if cfg.MetadataConcurrency <= 0 {
		cfg.MetadataConcurrency = 6
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "snapshot")),
		now:    time.Now,
	}
}

// GetMarketSnapshot returns the snapshot for opts, building it at most once
// per cache TTL. Concurrent callers with equal options share one build.
func (s *Service) GetMarketSnapshot(ctx context.Context, opts Options) (*domain.MarketSnapshot, error) {
	opts = opts.normalize(s.cfg.Defaults)
	if _, ok := s.cfg.Sports[opts.Sport]; !ok {
		return nil, fmt.Errorf("snapshot: %q: %w", opts.Sport, domain.ErrUnknownSport)
	}
	if s.deps.Cache == nil {
		return s.Build(ctx, opts)
	}
	return cache.WithCache(ctx, s.deps.Cache, opts.cacheKey(), s.cfg.SnapshotTTL,
		func(ctx context.Context) (*domain.MarketSnapshot, error) {
			return s.Build(ctx, opts)
		})
}

// Build runs one uncached build. It fails for an unknown sport or when ctx
// ends before the build completes; every other failure resolves to a stale
// or empty snapshot whose State records what happened.
func (s *Service) Build(ctx context.Context, opts Options) (*domain.MarketSnapshot, error) {
	opts = opts.normalize(s.cfg.Defaults)
	contracts, ok := s.cfg.Sports[opts.Sport]
	if !ok {
		return nil, fmt.Errorf("snapshot: %q: %w", opts.Sport, domain.ErrUnknownSport)
	}

	buildID := uuid.NewString()
	logger := s.logger.With(
		slog.String("sport", opts.Sport.String()),
		slog.String("build_id", buildID),
	)
	start := s.now()
	logger.InfoContext(ctx, "snapshot build started",
		slog.String("state", string(domain.BuildStateBuilding)),
		slog.Int("window_hours", opts.WindowHours),
		slog.Int("trend_days", opts.TrendDays),
	)

	live, err := s.assemble(ctx, opts, contracts, logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancellation is reported to the caller, never resolved to a snapshot.
		logger.WarnContext(ctx, "snapshot build abandoned", slog.String("error", ctxErr.Error()))
		return nil, fmt.Errorf("snapshot: build %s: %w", opts.Sport, ctxErr)
	}
	snap, persist := s.resolve(ctx, opts, live, err, logger)

	if persist {
		s.saveLastGood(ctx, snap, logger)
		s.recordHistory(ctx, buildID, snap, logger)
	}
	s.alert(ctx, snap, logger)

	logger.InfoContext(ctx, "snapshot build finished",
		slog.String("state", string(snap.State)),
		slog.Int("tokens", len(snap.Tokens)),
		slog.Int("trades", snap.Summary.Trades24h),
		slog.Duration("elapsed", s.now().Sub(start)),
	)
	return snap, nil
}

// resolve applies the fallback policy to a finished build and reports
// whether the result should become the new last-good snapshot.
func (s *Service) resolve(ctx context.Context, opts Options, live *liveBuild, err error, logger *slog.Logger) (*domain.MarketSnapshot, bool) {
	if err != nil {
		logger.ErrorContext(ctx, "snapshot build failed", slog.String("error", err.Error()))
		return s.fallback(ctx, opts, logger), false
	}
	snap := live.snapshot
	if len(snap.Tokens) == 0 {
		logger.WarnContext(ctx, "snapshot build produced no tokens")
		return s.fallback(ctx, opts, logger), false
	}

	// A failed window fetch with zero trades is treated as degradation. This
	// cannot tell a globally quiet market from a broken node.
	if live.activityErr != nil && snap.Summary.Trades24h == 0 {
		if prior, ok := s.priorSnapshot(ctx, opts.Sport, true, logger); ok {
			prior.State = domain.BuildStateDegradedUsingStale
			logger.WarnContext(ctx, "activity degraded, serving last good snapshot",
				slog.String("error", live.activityErr.Error()),
				slog.Int64("last_good_as_of", prior.AsOf),
			)
			return prior, false
		}
		logger.WarnContext(ctx, "activity degraded and no usable last good snapshot",
			slog.String("error", live.activityErr.Error()),
		)
		snap.State = domain.BuildStateSucceeded
		return snap, false
	}

	snap.State = domain.BuildStateSucceeded
	return snap, true
}

// fallback returns the last good snapshot, or an empty snapshot when none is
// usable.
func (s *Service) fallback(ctx context.Context, opts Options, logger *slog.Logger) *domain.MarketSnapshot {
	if prior, ok := s.priorSnapshot(ctx, opts.Sport, false, logger); ok {
		prior.State = domain.BuildStateFailedUsingStale
		return prior
	}
	return emptySnapshot(opts, s.now())
}

// priorSnapshot loads the last good snapshot if it is within the staleness
// bound and, when needTrades is set, recorded trading activity.
func (s *Service) priorSnapshot(ctx context.Context, sport domain.Sport, needTrades bool, logger *slog.Logger) (*domain.MarketSnapshot, bool) {
	if s.deps.LastGood == nil {
		return nil, false
	}
	prior, updatedAt, err := s.deps.LastGood.Load(ctx, sport)
	if err != nil {
		logger.DebugContext(ctx, "no last good snapshot", slog.String("error", err.Error()))
		return nil, false
	}
	if age := s.now().Sub(updatedAt); age > s.cfg.LastGoodMaxAge {
		logger.WarnContext(ctx, "last good snapshot is stale", slog.Duration("age", age))
		return nil, false
	}
	if needTrades && prior.Summary.Trades24h == 0 {
		return nil, false
	}
	return prior, true
}

func emptySnapshot(opts Options, now time.Time) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Sport:        opts.Sport,
		AsOf:         now.UnixMilli(),
		State:        domain.BuildStateFailedEmpty,
		WindowHours:  opts.WindowHours,
		TrendDays:    opts.TrendDays,
		Tokens:       []domain.MarketToken{},
		Summary:      domain.MarketSummary{Volume24hSharesRaw: "0"},
		Trends:       domain.MarketTrends{All: []domain.TrendPoint{}, Gainers: []domain.TrendPoint{}, Losers: []domain.TrendPoint{}},
		Distribution: newHistogram().buckets(),
	}
}
