package sportfun

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// PriceScale is the fixed-point scale of share amounts and per-share prices.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DecodeLog decodes one raw log. Logs whose topic0 is not a known event yield
// no events and no error. A malformed payload returns an error wrapping
// domain.ErrDecode; callers skip the log.
func DecodeLog(lg types.Log) ([]domain.TradeEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}

	var kind domain.TradeKind
	switch lg.Topics[0] {
	case BuyTopic:
		kind = domain.TradeKindBuy
	case SellTopic:
		kind = domain.TradeKindSell
	case PromotionTopic:
		kind = domain.TradeKindPromotion
	default:
		return nil, nil
	}

	event, err := marketABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	vals, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", domain.ErrDecode, event.Name, err)
	}
	arrays := make([][]*big.Int, len(vals))
	for i, v := range vals {
		arr, ok := v.([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: %s field %d has type %T", domain.ErrDecode, event.Name, i, v)
		}
		if i > 0 && len(arr) != len(arrays[0]) {
			return nil, fmt.Errorf("%w: %s array lengths differ", domain.ErrDecode, event.Name)
		}
		arrays[i] = arr
	}

	var account string
	if len(lg.Topics) > 1 {
		account = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
	}

	ids, shares := arrays[0], arrays[1]
	out := make([]domain.TradeEvent, 0, len(ids))
	for i, id := range ids {
		if id == nil || id.Sign() == 0 {
			continue
		}
		ev := domain.TradeEvent{
			Kind:        kind,
			TokenID:     id.String(),
			ShareAmount: new(big.Int).Set(shares[i]),
			Account:     account,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash.Hex(),
			LogIndex:    lg.Index,
		}
		if kind != domain.TradeKindPromotion {
			currency := arrays[2][i]
			ev.CurrencyAmount = new(big.Int).Set(currency)
			ev.PriceUsdcPerShare = PricePerShare(currency, shares[i])
			if kind == domain.TradeKindSell {
				ev.ShareAmount.Neg(ev.ShareAmount)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// PricePerShare returns currency*1e18/shares using integer division, or nil
// when shares is not positive.
func PricePerShare(currency, shares *big.Int) *big.Int {
	if currency == nil || shares == nil || shares.Sign() <= 0 {
		return nil
	}
	p := new(big.Int).Mul(currency, PriceScale)
	return p.Quo(p, shares)
}

// DecodeLogs decodes logs in order, skipping malformed ones. It returns the
// events and the number of skipped logs.
func DecodeLogs(logs []types.Log) ([]domain.TradeEvent, int) {
	var (
		out     []domain.TradeEvent
		skipped int
	)
	for _, lg := range logs {
		evs, err := DecodeLog(lg)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, evs...)
	}
	return out, skipped
}
