package snapshot

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/cache"
	"github.com/alanyoungcy/sportfun/internal/domain"
)

func TestBuild_TwoBuysAggregate(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7", "8"}
	f.logs.buy(t, 230, "0xa1", 7, e18(1), big.NewInt(5_000_000))
	f.logs.buy(t, 231, "0xa2", 7, e18(1), big.NewInt(5_000_000))
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateSucceeded, snap.State)
	require.Len(t, snap.Tokens, 2)

	tok, ok := snap.Token("7")
	require.True(t, ok)
	require.Equal(t, "5000000", tok.CurrentPriceUsdcRaw)
	require.Equal(t, "2000000000000000000", tok.Volume24hSharesRaw)
	require.Equal(t, 2, tok.Trades24h)
	require.Equal(t, testNow.Add(-9*time.Hour).UnixMilli(), tok.LastTradeAt)

	idle, ok := snap.Token("8")
	require.True(t, ok)
	require.Equal(t, "0", idle.Volume24hSharesRaw)
	require.Empty(t, idle.CurrentPriceUsdcRaw)

	require.Equal(t, 2, snap.Summary.TotalTokens)
	require.Equal(t, 1, snap.Summary.ActiveTokens)
	require.Equal(t, 2, snap.Summary.Trades24h)
	require.Equal(t, "5000000", snap.Summary.MedianPriceUsdcRaw)
	require.InDelta(t, 2, float64(snap.Summary.UniqueTraders24h), 1)

	require.Len(t, snap.Distribution, 7)
	require.Equal(t, "$5 - $10", snap.Distribution[3].Label)
	require.Equal(t, 1, snap.Distribution[3].Count)

	// Successful builds become the last good snapshot.
	prior, _, err := f.lastGood.Load(context.Background(), domain.SportNFL)
	require.NoError(t, err)
	require.Equal(t, 2, prior.Summary.Trades24h)
}

func TestBuild_AMMPriceWinsAndTrendSliceSetsReference(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"8"}
	f.logs.buy(t, 200, "0xa1", 8, e18(1), big.NewInt(4_000_000))
	f.logs.buy(t, 232, "0xa2", 8, e18(2), big.NewInt(10_000_000))
	f.prices.prices["8"] = big.NewInt(6_000_000)
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL, TrendDays: 3})
	require.NoError(t, err)

	tok, ok := snap.Token("8")
	require.True(t, ok)
	require.Equal(t, "6000000", tok.CurrentPriceUsdcRaw)
	require.Equal(t, "4000000", tok.Price24hAgoUsdcRaw)
	require.Equal(t, "2000000", tok.PriceChangeUsdcRaw)
	require.NotNil(t, tok.PriceChange24hPercent)
	require.InDelta(t, 50.0, *tok.PriceChange24hPercent, 1e-9)
	require.Equal(t, 1, tok.Trades24h, "the older trade is outside the window")
	require.Equal(t, 1, snap.Summary.Gainers)

	require.Len(t, snap.Trends.All, 3)
	require.Equal(t, "2026-03-08", snap.Trends.All[0].Day)
	require.Equal(t, 1, snap.Trends.All[0].Trades)
	require.Equal(t, "4000000", snap.Trends.All[0].AvgPriceUsdcRaw)
	require.Equal(t, 0, snap.Trends.All[1].Trades)
	require.Equal(t, 1, snap.Trends.All[2].Trades)
	require.Equal(t, "2000000000000000000", snap.Trends.All[2].VolumeSharesRaw)
	require.Equal(t, 2, snap.Trends.Gainers[0].Trades+snap.Trends.Gainers[2].Trades)
	require.Zero(t, snap.Trends.Losers[2].Trades)
}

func TestBuild_ReferencePriceIgnoresTrendDays(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"8"}
	f.logs.buy(t, 200, "0xa1", 8, e18(1), big.NewInt(4_000_000))
	f.logs.buy(t, 232, "0xa2", 8, e18(1), big.NewInt(5_000_000))
	f.prices.prices["8"] = big.NewInt(6_000_000)
	svc := f.service(f.deps())

	for _, days := range []int{1, 3} {
		snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL, TrendDays: days})
		require.NoError(t, err)
		tok, ok := snap.Token("8")
		require.True(t, ok)
		require.Equal(t, "4000000", tok.Price24hAgoUsdcRaw, "trendDays=%d", days)
		require.Equal(t, "2000000", tok.PriceChangeUsdcRaw, "trendDays=%d", days)
		require.Len(t, snap.Trends.All, days)
	}
}

func TestBuild_FallbackOnlyProvenance(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7"}
	f.metadata.err = errors.New("gateway timeout")
	f.feed.feed = &domain.FallbackFeed{
		Source: "feed",
		Players: []domain.FallbackPlayer{
			{TokenID: "7", Name: "Josh Allen", Position: "QB", Team: "BUF"},
		},
	}
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	tok, ok := snap.Token("7")
	require.True(t, ok)
	require.Equal(t, "Josh Allen", tok.Name)
	require.Equal(t, "QB", tok.Position)
	require.Equal(t, domain.MetadataSourceFallback, tok.MetadataSource)
}

func TestBuild_FeedListUsedWhenChainIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.universe.err = errors.New("rpc down")
	f.feed.feed = &domain.FallbackFeed{Players: []domain.FallbackPlayer{{TokenID: "12"}, {TokenID: "3"}}}
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Len(t, snap.Tokens, 2)
	require.Equal(t, "3", snap.Tokens[0].TokenIDDec)
	require.Equal(t, "12", snap.Tokens[1].TokenIDDec)
}

func TestBuild_DegradedActivityReturnsPrior(t *testing.T) {
	f := newFixture(t)
	prior := &domain.MarketSnapshot{
		Sport:   domain.SportNFL,
		AsOf:    testNow.Add(-time.Hour).UnixMilli(),
		State:   domain.BuildStateSucceeded,
		Tokens:  []domain.MarketToken{{TokenIDDec: "7", Trades24h: 50}},
		Summary: domain.MarketSummary{Trades24h: 50},
	}
	require.NoError(t, f.lastGood.Save(context.Background(), prior))

	f.universe.ids = []string{"7"}
	f.logs.err = errors.New("query returned more than 10000 results")
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateDegradedUsingStale, snap.State)
	require.Equal(t, 50, snap.Summary.Trades24h)
	require.Equal(t, prior.AsOf, snap.AsOf)

	// The degraded build did not replace the last good snapshot.
	stored, _, err := f.lastGood.Load(context.Background(), domain.SportNFL)
	require.NoError(t, err)
	require.Equal(t, 50, stored.Summary.Trades24h)

	require.Len(t, f.alerts.sent, 1)
	require.Equal(t, EventSnapshotStale, f.alerts.sent[0].event)
}

func TestBuild_DegradedWithoutPriorServesLiveButKeepsFile(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7"}
	f.logs.err = errors.New("boom")
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateSucceeded, snap.State)
	require.Len(t, snap.Tokens, 1)

	_, _, err = f.lastGood.Load(context.Background(), domain.SportNFL)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuild_EmptyTokensFallsBack(t *testing.T) {
	f := newFixture(t)
	prior := &domain.MarketSnapshot{
		Sport:  domain.SportNFL,
		AsOf:   testNow.Add(-2 * time.Hour).UnixMilli(),
		Tokens: []domain.MarketToken{{TokenIDDec: "7"}},
	}
	require.NoError(t, f.lastGood.Save(context.Background(), prior))
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateFailedUsingStale, snap.State)
	require.Len(t, snap.Tokens, 1)
}

func TestBuild_StalePriorIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.lastGood.now = func() time.Time { return testNow.Add(-25 * time.Hour) }
	require.NoError(t, f.lastGood.Save(context.Background(), &domain.MarketSnapshot{
		Sport:  domain.SportNFL,
		Tokens: []domain.MarketToken{{TokenIDDec: "7"}},
	}))
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateFailedEmpty, snap.State)
	require.Empty(t, snap.Tokens)
	require.Len(t, snap.Distribution, 7)
	require.Equal(t, "0", snap.Summary.Volume24hSharesRaw)
	require.Equal(t, EventSnapshotEmpty, f.alerts.sent[0].event)
}

func TestBuild_CorruptLastGoodIsMiss(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.lastGood.dir, "snapshot-nfl.json"), []byte("{not json"), 0o644))
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateFailedEmpty, snap.State)
}

func TestBuild_UnknownSport(t *testing.T) {
	f := newFixture(t)
	svc := f.service(f.deps())
	_, err := svc.Build(context.Background(), Options{Sport: domain.SportSoccer})
	require.ErrorIs(t, err, domain.ErrUnknownSport)
}

func TestBuild_MetadataInactiveFirstWithinLimit(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"1", "2", "3", "4", "5"}
	f.logs.buy(t, 230, "0xa1", 1, e18(1), big.NewInt(1_000_000))
	f.metadata.docs["5"] = &domain.TokenMetadata{Name: "Cached Five"}
	svc := f.service(f.deps())

	snap, err := svc.Build(context.Background(), Options{Sport: domain.SportNFL, MetadataLimit: 2})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"2", "3"}, f.metadata.fetched)
	require.ElementsMatch(t, []string{"4", "5", "1"}, f.metadata.cached)

	tok, _ := snap.Token("5")
	require.Equal(t, "Cached Five", tok.Name)
	require.Equal(t, domain.MetadataSourceOnchain, tok.MetadataSource)
}

func TestGetMarketSnapshot_CachesBuilds(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7"}
	deps := f.deps()
	deps.Cache = cache.New(t.TempDir(), nil, testLogger())
	svc := f.service(deps)

	opts := Options{Sport: domain.SportNFL}
	first, err := svc.GetMarketSnapshot(context.Background(), opts)
	require.NoError(t, err)
	second, err := svc.GetMarketSnapshot(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, first.AsOf, second.AsOf)
	require.EqualValues(t, 1, f.universe.calls.Load())

	// Different options are a different entry.
	_, err = svc.GetMarketSnapshot(context.Background(), Options{Sport: domain.SportNFL, WindowHours: 48})
	require.NoError(t, err)
	require.EqualValues(t, 2, f.universe.calls.Load())
}

func TestGetMarketSnapshot_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7"}
	f.logs.buy(t, 230, "0xa1", 7, e18(1), big.NewInt(5_000_000))
	deps := f.deps()
	deps.Cache = cache.New(t.TempDir(), nil, testLogger())
	svc := f.service(deps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GetMarketSnapshot(ctx, Options{Sport: domain.SportNFL})
	require.ErrorIs(t, err, context.Canceled)

	snap, err := svc.GetMarketSnapshot(context.Background(), Options{Sport: domain.SportNFL})
	require.NoError(t, err)
	require.Equal(t, domain.BuildStateSucceeded, snap.State)
	require.Len(t, snap.Tokens, 1)
	require.Equal(t, 1, snap.Summary.Trades24h)
}

func TestBuild_CancelledIsReportedNotResolved(t *testing.T) {
	f := newFixture(t)
	f.universe.ids = []string{"7"}
	svc := f.service(f.deps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := svc.Build(ctx, Options{Sport: domain.SportNFL})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, snap)
	require.Empty(t, f.alerts.sent)

	_, _, err = f.lastGood.Load(context.Background(), domain.SportNFL)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLimitTokens_ActiveFirst(t *testing.T) {
	aggs := map[string]*domain.TokenAggregate{
		"9": {TokenID: "9", Trades: 1},
		"4": {TokenID: "4", Trades: 3},
	}
	got := limitTokens([]string{"1", "2", "4", "9", "10"}, aggs, 3)
	require.Equal(t, []string{"1", "4", "9"}, got)

	require.Len(t, limitTokens([]string{"1", "2"}, aggs, 0), 2)
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{Sport: domain.SportNFL, MetadataLimit: -1}.normalize(Options{WindowHours: 12})
	require.Equal(t, 12, o.WindowHours)
	require.Equal(t, 7, o.TrendDays)
	require.Equal(t, -1, o.MetadataLimit)
	require.Equal(t, o, o.normalize(Options{WindowHours: 12}))

	o = Options{WindowHours: 100000, TrendDays: 1000}.normalize(Options{})
	require.Equal(t, 720, o.WindowHours)
	require.Equal(t, 90, o.TrendDays)
	require.Equal(t, 250, o.MetadataLimit)
}
