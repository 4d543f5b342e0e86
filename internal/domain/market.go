package domain

import "encoding/json"

// MetadataSource records which sources contributed a token's displayed
// metadata.
type MetadataSource string

const (
	MetadataSourceOnchain  MetadataSource = "onchain"
	MetadataSourceFallback MetadataSource = "fallback"
	MetadataSourceHybrid   MetadataSource = "hybrid"
	MetadataSourceOverride MetadataSource = "override"
	MetadataSourceNone     MetadataSource = "none"
)

// BuildState is the terminal (or in-flight) state of a snapshot build.
type BuildState string

const (
	BuildStateBuilding           BuildState = "building"
	BuildStateSucceeded          BuildState = "succeeded"
	BuildStateDegradedUsingStale BuildState = "degraded-using-stale"
	BuildStateFailedUsingStale   BuildState = "failed-using-stale"
	BuildStateFailedEmpty        BuildState = "failed-empty"
)

// MarketToken is the externally visible per-token record. Raw amounts are
// decimal strings; an empty string means the value is unknown.
type MarketToken struct {
	TokenIDDec  string          `json:"tokenIdDec"`
	Name        string          `json:"name,omitempty"`
	Image       string          `json:"image,omitempty"`
	Description string          `json:"description,omitempty"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
	Position    string          `json:"position,omitempty"`
	Team        string          `json:"team,omitempty"`
	Supply      string          `json:"supply,omitempty"`
	IsTradeable *bool           `json:"isTradeable,omitempty"`

	CurrentPriceUsdcRaw   string   `json:"currentPriceUsdcRaw,omitempty"`
	Price24hAgoUsdcRaw    string   `json:"price24hAgoUsdcRaw,omitempty"`
	PriceChangeUsdcRaw    string   `json:"priceChangeUsdcRaw,omitempty"`
	PriceChange24hPercent *float64 `json:"priceChange24hPercent,omitempty"`

	Volume24hSharesRaw string `json:"volume24hSharesRaw"`
	Trades24h          int    `json:"trades24h"`
	LastTradeAt        int64  `json:"lastTradeAt,omitempty"`

	MetadataSource MetadataSource `json:"metadataSource"`
}

// MarketSummary holds the snapshot-wide statistics. Price statistics are
// computed over tokens with a known current price.
type MarketSummary struct {
	TotalTokens        int    `json:"totalTokens"`
	ActiveTokens       int    `json:"activeTokens"`
	PricedTokens       int    `json:"pricedTokens"`
	Trades24h          int    `json:"trades24h"`
	Volume24hSharesRaw string `json:"volume24hSharesRaw"`
	AvgPriceUsdcRaw    string `json:"avgPriceUsdcRaw,omitempty"`
	MedianPriceUsdcRaw string `json:"medianPriceUsdcRaw,omitempty"`
	P25PriceUsdcRaw    string `json:"p25PriceUsdcRaw,omitempty"`
	P75PriceUsdcRaw    string `json:"p75PriceUsdcRaw,omitempty"`
	MinPriceUsdcRaw    string `json:"minPriceUsdcRaw,omitempty"`
	MaxPriceUsdcRaw    string `json:"maxPriceUsdcRaw,omitempty"`
	Gainers            int    `json:"gainers"`
	Losers             int    `json:"losers"`
	UniqueTraders24h   uint64 `json:"uniqueTraders24h"`
}

// TrendPoint is one UTC day of activity.
type TrendPoint struct {
	Day             string `json:"day"`
	DayStartMs      int64  `json:"dayStartMs"`
	VolumeSharesRaw string `json:"volumeSharesRaw"`
	Trades          int    `json:"trades"`
	AvgPriceUsdcRaw string `json:"avgPriceUsdcRaw,omitempty"`
}

// MarketTrends groups the three daily series.
type MarketTrends struct {
	All     []TrendPoint `json:"all"`
	Gainers []TrendPoint `json:"gainers"`
	Losers  []TrendPoint `json:"losers"`
}

// DistributionBucket is one bar of the price histogram. MaxUsdcRaw is zero
// for the open-ended top bucket.
type DistributionBucket struct {
	Label      string `json:"label"`
	MinUsdcRaw int64  `json:"minUsdcRaw"`
	MaxUsdcRaw int64  `json:"maxUsdcRaw,omitempty"`
	Count      int    `json:"count"`
}

// MarketSnapshot is the aggregate root returned to API callers.
type MarketSnapshot struct {
	Sport        Sport                `json:"sport"`
	AsOf         int64                `json:"asOf"`
	State        BuildState           `json:"state"`
	WindowHours  int                  `json:"windowHours"`
	TrendDays    int                  `json:"trendDays"`
	Tokens       []MarketToken        `json:"tokens"`
	Summary      MarketSummary        `json:"summary"`
	Trends       MarketTrends         `json:"trends"`
	Distribution []DistributionBucket `json:"distribution"`
}

// Token returns the token with the given decimal id.
func (s *MarketSnapshot) Token(id string) (MarketToken, bool) {
	for _, t := range s.Tokens {
		if t.TokenIDDec == id {
			return t, true
		}
	}
	return MarketToken{}, false
}
