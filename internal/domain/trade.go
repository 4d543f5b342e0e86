package domain

import "math/big"

// TradeKind distinguishes the three decoded event shapes.
type TradeKind string

const (
	TradeKindBuy       TradeKind = "buy"
	TradeKindSell      TradeKind = "sell"
	TradeKindPromotion TradeKind = "promotion"
)

// TradeEvent is one decoded fill (or promotional grant) for a single token.
// Amounts are raw on-chain integers: shares and prices use 1e18 fixed point,
// currency is USDC with 6 decimals.
type TradeEvent struct {
	Kind    TradeKind
	TokenID string
	// PriceUsdcPerShare is currency*1e18/shares. Nil when shares is zero or
	// the event carries no currency leg.
	PriceUsdcPerShare *big.Int
	// ShareAmount is negative for sells.
	ShareAmount    *big.Int
	CurrencyAmount *big.Int
	Account        string
	BlockNumber    uint64
	TxHash         string
	LogIndex       uint
	TimestampMs    int64
}

// IsTrade reports whether the event is a buy or sell fill.
func (e TradeEvent) IsTrade() bool {
	return e.Kind == TradeKindBuy || e.Kind == TradeKindSell
}

// TokenAggregate is the per-token rollup of trades inside one window.
type TokenAggregate struct {
	TokenID      string
	FirstPrice   *big.Int
	LastPrice    *big.Int
	VolumeShares *big.Int
	Trades       int
	FirstTradeAt int64
	LastTradeAt  int64
}
