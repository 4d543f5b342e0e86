package sportfun

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/chain/chaintest"
)

var market = common.HexToAddress("0x00000000000000000000000000000000000000cc")

// priceNode answers getPrices with id*1000 and uri with a fixed template.
func priceNode(t *testing.T, calls *int) *chaintest.Node {
	node := chaintest.NewNode(1, 0, 1)
	node.EthCall = func(to common.Address, data []byte) ([]byte, error) {
		if ids, err := UnpackGetPricesInput(data); err == nil {
			*calls++
			prices := make([]*big.Int, len(ids))
			for i, id := range ids {
				prices[i] = new(big.Int).Mul(id, big.NewInt(1000))
			}
			return PackPrices(prices)
		}
		m, err := tokenABI.MethodById(data[:4])
		require.NoError(t, err)
		return m.Outputs.Pack("ipfs://cid/{id}.json")
	}
	return node
}

func TestQuotePrices_Batches(t *testing.T) {
	var calls int
	c := NewContracts(priceNode(t, &calls))

	ids := make([]*big.Int, 0, 450)
	for i := int64(0); i < 450; i++ {
		ids = append(ids, big.NewInt(i))
	}
	prices, err := c.QuotePrices(context.Background(), market, ids)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	// id 0 quotes zero and is left unpriced
	require.Len(t, prices, 449)
	require.Equal(t, "449000", prices["449"].String())
}

func TestTokenURI(t *testing.T) {
	var calls int
	c := NewContracts(priceNode(t, &calls))
	uri, err := c.TokenURI(context.Background(), market.Hex(), "12")
	require.NoError(t, err)
	require.Equal(t, "ipfs://cid/{id}.json", uri)

	_, err = c.TokenURI(context.Background(), market.Hex(), "x")
	require.Error(t, err)
}
