package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

const (
	hourMs = int64(time.Hour / time.Millisecond)
	dayMs  = 24 * hourMs

	// referenceLookbackMs bounds how far before the window the 24h reference
	// price is searched for, whatever the trend range.
	referenceLookbackMs = 7 * dayMs
)

// liveBuild is the outcome of the live pipeline before the fallback policy.
type liveBuild struct {
	snapshot    *domain.MarketSnapshot
	activityErr error
}

// assemble runs the live pipeline. Step failures degrade to empty step
// results; only cancellation or a panic fails the whole build.
func (s *Service) assemble(ctx context.Context, opts Options, c Contracts, logger *slog.Logger) (live *liveBuild, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot: build panicked: %v", r)
		}
	}()

	nowMs := s.now().UnixMilli()
	windowStartMs := nowMs - int64(opts.WindowHours)*hourMs
	trendStartMs := dayStart(nowMs) - int64(opts.TrendDays-1)*dayMs
	referenceStartMs := windowStartMs - referenceLookbackMs

	act, activityErr := s.fetchActivity(ctx, c, windowStartMs, min(trendStartMs, referenceStartMs), logger)
	if activityErr != nil {
		logger.WarnContext(ctx, "window activity unavailable, continuing without trades",
			slog.String("error", activityErr.Error()),
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	aggs := aggregate(act.window)
	earlierPrices := lastPrices(since(act.earlier, referenceStartMs))

	feed := s.fallbackFeed(ctx, opts.Sport, c, logger)
	players := feed.ByTokenID()

	ids := s.tokenIDs(ctx, opts.Sport, c, aggs, feed, logger)
	ids = limitTokens(ids, aggs, opts.MaxTokens)

	prices := s.quotePrices(ctx, c, ids, logger)
	meta := s.decorate(ctx, c, ids, aggs, max(opts.MetadataLimit, 0), logger)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	contract := c.PlayerToken.Hex()
	rows := make([]row, 0, len(ids))
	for _, id := range ids {
		var fb *domain.FallbackPlayer
		if p, ok := players[id]; ok {
			fb = &p
		}
		var override string
		if s.deps.Overrides != nil {
			override, _ = s.deps.Overrides.Lookup(contract, id)
		}
		rows = append(rows, buildRow(id, aggs[id], earlierPrices[id], prices[id], meta[id], fb, override))
	}

	tokens := make([]domain.MarketToken, len(rows))
	for i, r := range rows {
		tokens[i] = r.token
	}
	snap := &domain.MarketSnapshot{
		Sport:        opts.Sport,
		AsOf:         nowMs,
		State:        domain.BuildStateBuilding,
		WindowHours:  opts.WindowHours,
		TrendDays:    opts.TrendDays,
		Tokens:       tokens,
		Summary:      summarize(rows, act.window),
		Trends:       trends(rows, act.all(), trendStartMs, nowMs),
		Distribution: distribution(rows),
	}
	return &liveBuild{snapshot: snap, activityErr: activityErr}, nil
}

func (s *Service) fallbackFeed(ctx context.Context, sport domain.Sport, c Contracts, logger *slog.Logger) *domain.FallbackFeed {
	if !c.FallbackFeed || s.deps.Fallback == nil {
		return nil
	}
	feed, err := s.deps.Fallback.Players(ctx, sport)
	if err != nil {
		logger.WarnContext(ctx, "fallback feed unavailable", slog.String("error", err.Error()))
		return nil
	}
	logger.DebugContext(ctx, "fallback feed loaded",
		slog.String("source", feed.Source),
		slog.Int64("age_seconds", feed.AgeSeconds),
		slog.Int("players", len(feed.Players)),
	)
	return feed
}

// tokenIDs returns the catalogue: the on-chain universe plus anything that
// traded in the window, or the fallback feed's list when both are empty.
func (s *Service) tokenIDs(ctx context.Context, sport domain.Sport, c Contracts, aggs map[string]*domain.TokenAggregate, feed *domain.FallbackFeed, logger *slog.Logger) []string {
	set := make(map[string]bool)
	add := func(id string) {
		if n, ok := new(big.Int).SetString(id, 10); ok && n.Sign() > 0 {
			set[n.String()] = true
		}
	}
	if s.deps.Universe != nil {
		ids, err := s.deps.Universe.GetTokenUniverse(ctx, sport, c.LookbackDays)
		if err != nil {
			logger.WarnContext(ctx, "token universe unavailable", slog.String("error", err.Error()))
		}
		for _, id := range ids {
			add(id)
		}
	}
	for id := range aggs {
		add(id)
	}
	if len(set) == 0 && feed != nil {
		logger.InfoContext(ctx, "using fallback feed token list", slog.Int("players", len(feed.Players)))
		for _, p := range feed.Players {
			add(p.TokenID)
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortNumeric(out)
	return out
}

// limitTokens keeps at most limit tokens, active ones first.
func limitTokens(ids []string, aggs map[string]*domain.TokenAggregate, limit int) []string {
	if limit <= 0 || len(ids) <= limit {
		return ids
	}
	active, inactive := partitionActive(ids, aggs)
	kept := append(active, inactive...)[:limit]
	sortNumeric(kept)
	return kept
}

func (s *Service) quotePrices(ctx context.Context, c Contracts, ids []string, logger *slog.Logger) map[string]*big.Int {
	if s.deps.Prices == nil || c.Market == zeroAddress || len(ids) == 0 {
		return map[string]*big.Int{}
	}
	bigIDs := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		n, _ := new(big.Int).SetString(id, 10)
		bigIDs = append(bigIDs, n)
	}
	prices, err := s.deps.Prices.QuotePrices(ctx, c.Market, bigIDs)
	if err != nil {
		logger.WarnContext(ctx, "price quotes incomplete",
			slog.Int("priced", len(prices)),
			slog.Int("tokens", len(ids)),
			slog.String("error", err.Error()),
		)
	}
	if prices == nil {
		prices = map[string]*big.Int{}
	}
	return prices
}

// decorate resolves metadata for up to limit tokens, inactive tokens first,
// and reads whatever is already cached for the rest.
func (s *Service) decorate(ctx context.Context, c Contracts, ids []string, aggs map[string]*domain.TokenAggregate, limit int, logger *slog.Logger) map[string]*domain.TokenMetadata {
	out := make(map[string]*domain.TokenMetadata, len(ids))
	if s.deps.Metadata == nil {
		return out
	}
	contract := c.PlayerToken.Hex()

	active, inactive := partitionActive(ids, aggs)
	order := append(inactive, active...)
	limit = min(limit, len(order))

	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	g.SetLimit(s.cfg.MetadataConcurrency)
	for _, id := range order[:limit] {
		g.Go(func() error {
			md, err := s.deps.Metadata.GetMetadata(ctx, contract, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.DebugContext(ctx, "metadata fetch failed",
					slog.String("token_id", id),
					slog.String("error", err.Error()),
				)
			}
			if md != nil {
				out[id] = md
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range order[limit:] {
		if md := s.deps.Metadata.Cached(ctx, contract, id); md != nil {
			out[id] = md
		}
	}
	if failed > 0 {
		logger.WarnContext(ctx, "metadata partially unavailable",
			slog.Int("failed", failed),
			slog.Int("fetched", limit),
		)
	}
	if err := s.deps.Metadata.Flush(ctx); err != nil {
		logger.WarnContext(ctx, "metadata cache flush failed", slog.String("error", err.Error()))
	}
	return out
}

// partitionActive splits ids, preserving order, by whether they traded in
// the window.
func partitionActive(ids []string, aggs map[string]*domain.TokenAggregate) (active, inactive []string) {
	for _, id := range ids {
		if a, ok := aggs[id]; ok && a.Trades > 0 {
			active = append(active, id)
		} else {
			inactive = append(inactive, id)
		}
	}
	return active, inactive
}

func sortNumeric(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}

func dayStart(ms int64) int64 {
	return ms - ((ms%dayMs)+dayMs)%dayMs
}
