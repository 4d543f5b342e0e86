package sportfun

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

var trader = common.HexToAddress("0x000000000000000000000000000000000000beef")

func ints(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func eventLog(t *testing.T, name string, block uint64, arrays ...[]*big.Int) types.Log {
	t.Helper()
	ev := marketABI.Events[name]
	args := make([]any, len(arrays))
	for i, a := range arrays {
		args[i] = a
	}
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return types.Log{
		Topics:      []common.Hash{ev.ID, common.BytesToHash(trader.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func TestDecodeLog_Buy(t *testing.T) {
	lg := eventLog(t, "PlayerTokensPurchase", 10,
		ints(7, 0, 9),
		[]*big.Int{wei("1000000000000000000"), big.NewInt(5), big.NewInt(0)},
		ints(5_000_000, 1, 3_000_000),
	)

	evs, err := DecodeLog(lg)
	require.NoError(t, err)
	// token 0 dropped
	require.Len(t, evs, 2)

	require.Equal(t, domain.TradeKindBuy, evs[0].Kind)
	require.Equal(t, "7", evs[0].TokenID)
	require.Equal(t, "5000000", evs[0].PriceUsdcPerShare.String())
	require.Equal(t, "1000000000000000000", evs[0].ShareAmount.String())
	require.Equal(t, trader.Hex(), evs[0].Account)
	require.EqualValues(t, 10, evs[0].BlockNumber)

	// zero shares: price undefined, not zero
	require.Equal(t, "9", evs[1].TokenID)
	require.Nil(t, evs[1].PriceUsdcPerShare)
}

func TestDecodeLog_SellIsNegative(t *testing.T) {
	lg := eventLog(t, "CurrencyPurchase", 11,
		ints(3),
		[]*big.Int{wei("2000000000000000000")},
		ints(7_000_000),
	)
	evs, err := DecodeLog(lg)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, domain.TradeKindSell, evs[0].Kind)
	require.Equal(t, "-2000000000000000000", evs[0].ShareAmount.String())
	require.Equal(t, "3500000", evs[0].PriceUsdcPerShare.String())
	require.True(t, evs[0].IsTrade())
}

func TestDecodeLog_Promotion(t *testing.T) {
	lg := eventLog(t, "PromotionSharesGranted", 12, ints(4, 5), ints(100, 200))
	evs, err := DecodeLog(lg)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		require.Equal(t, domain.TradeKindPromotion, ev.Kind)
		require.Nil(t, ev.PriceUsdcPerShare)
		require.False(t, ev.IsTrade())
	}
}

func TestDecodeLog_MismatchedArrays(t *testing.T) {
	lg := eventLog(t, "PlayerTokensPurchase", 10, ints(1, 2), ints(1), ints(1, 2))
	_, err := DecodeLog(lg)
	require.True(t, errors.Is(err, domain.ErrDecode))
}

func TestDecodeLog_UnrelatedAndMalformed(t *testing.T) {
	evs, err := DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0x1234")}})
	require.NoError(t, err)
	require.Empty(t, evs)

	_, err = DecodeLog(types.Log{Topics: []common.Hash{BuyTopic}, Data: []byte{1, 2, 3}})
	require.ErrorIs(t, err, domain.ErrDecode)

	good := eventLog(t, "PlayerTokensPurchase", 1, ints(1), ints(10), ints(10))
	bad := types.Log{Topics: []common.Hash{SellTopic}, Data: []byte{0xff}}
	out, skipped := DecodeLogs([]types.Log{good, bad, good})
	require.Len(t, out, 2)
	require.Equal(t, 1, skipped)
}

func TestPricePerShare_IntegerDivision(t *testing.T) {
	for _, tc := range []struct {
		currency, shares string
		want             string
	}{
		{"5000000", "1000000000000000000", "5000000"},
		{"1", "3000000000000000000", "0"},
		{"10000000", "3000000000000000000", "3333333"},
		{"7", "3", "2333333333333333333"},
	} {
		got := PricePerShare(wei(tc.currency), wei(tc.shares))
		require.Equal(t, tc.want, got.String())
	}
	require.Nil(t, PricePerShare(big.NewInt(5), big.NewInt(0)))
	require.Nil(t, PricePerShare(big.NewInt(5), big.NewInt(-1)))
}
