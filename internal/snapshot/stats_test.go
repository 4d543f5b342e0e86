package snapshot

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

func TestBucketIndex_LowerBoundInclusive(t *testing.T) {
	cases := []struct {
		raw   int64
		label string
	}{
		{0, "$0 - $0.50"},
		{499_999, "$0 - $0.50"},
		{500_000, "$0.50 - $1"},
		{4_999_999, "$1 - $5"},
		{5_000_000, "$5 - $10"},
		{25_000_000, "$25 - $50"},
		{50_000_000, "$50+"},
		{900_000_000, "$50+"},
	}
	for _, tc := range cases {
		i := bucketIndex(big.NewInt(tc.raw))
		require.GreaterOrEqual(t, i, 0)
		require.Equal(t, tc.label, priceBuckets[i].label, "raw %d", tc.raw)
	}
	require.Equal(t, -1, bucketIndex(big.NewInt(-1)))
}

func priced(id string, price, change int64) row {
	r := row{token: domain.MarketToken{TokenIDDec: id, Volume24hSharesRaw: "0"}, price: big.NewInt(price)}
	if change != 0 {
		r.change = big.NewInt(change)
	}
	return r
}

func TestSummarize_RankLookups(t *testing.T) {
	rows := []row{
		priced("1", 400, 10),
		priced("2", 100, -5),
		priced("3", 300, 0),
		priced("4", 200, 0),
		{token: domain.MarketToken{TokenIDDec: "5", Volume24hSharesRaw: "7", Trades24h: 2}},
	}
	s := summarize(rows, nil)
	require.Equal(t, 5, s.TotalTokens)
	require.Equal(t, 4, s.PricedTokens)
	require.Equal(t, 1, s.ActiveTokens)
	require.Equal(t, "250", s.AvgPriceUsdcRaw)
	require.Equal(t, "300", s.MedianPriceUsdcRaw)
	require.Equal(t, "200", s.P25PriceUsdcRaw)
	require.Equal(t, "400", s.P75PriceUsdcRaw)
	require.Equal(t, "100", s.MinPriceUsdcRaw)
	require.Equal(t, "400", s.MaxPriceUsdcRaw)
	require.Equal(t, 1, s.Gainers)
	require.Equal(t, 1, s.Losers)
	require.Equal(t, "7", s.Volume24hSharesRaw)
	require.Zero(t, s.UniqueTraders24h)
}

func TestMergeMetadata_Provenance(t *testing.T) {
	onchain := &domain.TokenMetadata{
		Name:       "On Chain",
		Attributes: json.RawMessage(`[{"trait_type":"Position","value":"WR"}]`),
	}
	feed := &domain.FallbackPlayer{TokenID: "1", Name: "Feed Name", Team: "KC"}
	tradeable := true
	flagOnly := &domain.FallbackPlayer{TokenID: "1", IsTradeable: &tradeable}

	cases := []struct {
		name     string
		override string
		md       *domain.TokenMetadata
		fb       *domain.FallbackPlayer
		wantName string
		want     domain.MetadataSource
	}{
		{"none", "", nil, nil, "", domain.MetadataSourceNone},
		{"onchain only", "", onchain, nil, "On Chain", domain.MetadataSourceOnchain},
		{"fallback only", "", nil, feed, "Feed Name", domain.MetadataSourceFallback},
		{"hybrid", "", onchain, feed, "On Chain", domain.MetadataSourceHybrid},
		{"override", "Manual", onchain, feed, "Manual", domain.MetadataSourceOverride},
		{"empty onchain doc", "", &domain.TokenMetadata{}, feed, "Feed Name", domain.MetadataSourceFallback},
		{"onchain with feed flag only", "", onchain, flagOnly, "On Chain", domain.MetadataSourceOnchain},
		{"feed flag only", "", nil, flagOnly, "", domain.MetadataSourceNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tok domain.MarketToken
			got := mergeMetadata(&tok, tc.override, tc.md, tc.fb)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantName, tok.Name)
		})
	}

	var tok domain.MarketToken
	mergeMetadata(&tok, "", onchain, feed)
	require.Equal(t, "WR", tok.Position)
	require.Equal(t, "KC", tok.Team)

	tok = domain.MarketToken{}
	mergeMetadata(&tok, "", onchain, flagOnly)
	require.NotNil(t, tok.IsTradeable)
	require.True(t, *tok.IsTradeable)
}

func TestDayStart(t *testing.T) {
	ms := int64(1_773_144_000_000) // 2026-03-10T12:00:00Z
	require.Equal(t, int64(1_773_100_800_000), dayStart(ms))
	require.Equal(t, dayStart(ms), dayStart(dayStart(ms)))
}
