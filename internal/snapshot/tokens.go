package snapshot

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/metadata"
)

var zeroAddress common.Address

// row is a token together with the numeric values the summary views need.
type row struct {
	token  domain.MarketToken
	price  *big.Int
	change *big.Int
}

type source int

const (
	fromOverride source = iota
	fromOnchain
	fromFallback
)

type candidate struct {
	src   source
	value string
}

// contributors records which sources supplied a non-empty field.
type contributors struct {
	override, onchain, fallback bool
}

func (c *contributors) mark(src source) {
	switch src {
	case fromOverride:
		c.override = true
	case fromOnchain:
		c.onchain = true
	case fromFallback:
		c.fallback = true
	}
}

// first returns the first non-empty candidate and credits its source.
func (c *contributors) first(cands ...candidate) string {
	for _, cand := range cands {
		if v := strings.TrimSpace(cand.value); v != "" {
			c.mark(cand.src)
			return v
		}
	}
	return ""
}

func (c *contributors) label() domain.MetadataSource {
	switch {
	case c.override:
		return domain.MetadataSourceOverride
	case c.onchain && c.fallback:
		return domain.MetadataSourceHybrid
	case c.onchain:
		return domain.MetadataSourceOnchain
	case c.fallback:
		return domain.MetadataSourceFallback
	default:
		return domain.MetadataSourceNone
	}
}

// mergeMetadata fills the display fields of t from the override name, the
// on-chain document and the fallback feed, first non-empty wins per field,
// and returns the provenance label.
func mergeMetadata(t *domain.MarketToken, override string, md *domain.TokenMetadata, fb *domain.FallbackPlayer) domain.MetadataSource {
	var (
		c     contributors
		chain domain.TokenMetadata
		feed  domain.FallbackPlayer
	)
	if md != nil {
		chain = *md
	}
	if fb != nil {
		feed = *fb
	}
	attrs := metadata.ParseAttributes(chain.Attributes)
	position, _ := attrs.Position()
	team, _ := attrs.Team()
	supply, _ := attrs.Supply()

	t.Name = c.first(candidate{fromOverride, override}, candidate{fromOnchain, chain.Name}, candidate{fromFallback, feed.Name})
	t.Position = c.first(candidate{fromOnchain, position}, candidate{fromFallback, feed.Position})
	t.Team = c.first(candidate{fromOnchain, team}, candidate{fromFallback, feed.Team})
	t.Supply = c.first(candidate{fromOnchain, supply}, candidate{fromFallback, feed.Supply})
	t.Image = c.first(candidate{fromOnchain, chain.Image}, candidate{fromFallback, feed.Image})
	t.Description = c.first(candidate{fromOnchain, chain.Description})
	if attrs.Len() > 0 {
		t.Attributes = chain.Attributes
		c.mark(fromOnchain)
	}
	// Tradeability is a market flag, not display metadata; it does not count
	// toward provenance.
	t.IsTradeable = feed.IsTradeable
	return c.label()
}

// buildRow assembles one token. The current price is the AMM quote, else the
// last window trade. The reference price is the last trade in the week before
// the window, else the first window trade.
func buildRow(id string, agg *domain.TokenAggregate, earlier, amm *big.Int, md *domain.TokenMetadata, fb *domain.FallbackPlayer, override string) row {
	t := domain.MarketToken{TokenIDDec: id, Volume24hSharesRaw: "0"}
	t.MetadataSource = mergeMetadata(&t, override, md, fb)

	current := amm
	reference := earlier
	if agg != nil {
		t.Volume24hSharesRaw = agg.VolumeShares.String()
		t.Trades24h = agg.Trades
		t.LastTradeAt = agg.LastTradeAt
		if current == nil {
			current = agg.LastPrice
		}
		if reference == nil {
			reference = agg.FirstPrice
		}
	}

	r := row{token: t, price: current}
	if current != nil {
		r.token.CurrentPriceUsdcRaw = current.String()
	}
	if reference != nil {
		r.token.Price24hAgoUsdcRaw = reference.String()
	}
	if current != nil && reference != nil {
		r.change = new(big.Int).Sub(current, reference)
		r.token.PriceChangeUsdcRaw = r.change.String()
		if reference.Sign() > 0 {
			pct, _ := decimal.NewFromBigInt(r.change, 0).
				Mul(decimal.NewFromInt(100)).
				DivRound(decimal.NewFromBigInt(reference, 0), 4).
				Float64()
			r.token.PriceChange24hPercent = &pct
		}
	}
	return r
}
