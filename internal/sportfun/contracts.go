package sportfun

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sportfun/internal/chain"
)

// PriceBatchSize bounds the token ids sent in one getPrices call.
const PriceBatchSize = 200

// Contracts performs read-only calls against the Sport.fun contracts.
type Contracts struct {
	node chain.Caller
}

// NewContracts creates a contract reader over node.
func NewContracts(node chain.Caller) *Contracts {
	return &Contracts{node: node}
}

// QuotePrices returns the current AMM price (USDC raw per share) of every id,
// keyed by decimal id. Batches that fail are skipped and reported through the
// joined error; the prices from the other batches are still returned. Zero
// quotes are treated as unpriced.
func (c *Contracts) QuotePrices(ctx context.Context, market common.Address, ids []*big.Int) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(ids))
	var errs []error
	for start := 0; start < len(ids); start += PriceBatchSize {
		end := min(start+PriceBatchSize, len(ids))
		batch := ids[start:end]
		prices, err := c.getPrices(ctx, market, batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", start, end, err))
			continue
		}
		for i, p := range prices {
			if p != nil && p.Sign() > 0 {
				out[batch[i].String()] = p
			}
		}
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("sportfun: quote prices: %w", errors.Join(errs...))
	}
	return out, nil
}

func (c *Contracts) getPrices(ctx context.Context, market common.Address, ids []*big.Int) ([]*big.Int, error) {
	data, err := PackGetPrices(ids)
	if err != nil {
		return nil, err
	}
	raw, err := chain.CallContract(ctx, c.node, market, data)
	if err != nil {
		return nil, err
	}
	vals, err := marketABI.Unpack("getPrices", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack getPrices: %w", err)
	}
	prices, ok := vals[0].([]*big.Int)
	if !ok || len(prices) != len(ids) {
		return nil, fmt.Errorf("getPrices returned %d prices for %d ids", len(prices), len(ids))
	}
	return prices, nil
}

// TokenURI returns the ERC-1155 uri(id) of contract.
func (c *Contracts) TokenURI(ctx context.Context, contract string, tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("sportfun: token uri: bad token id %q", tokenID)
	}
	data, err := tokenABI.Pack("uri", id)
	if err != nil {
		return "", fmt.Errorf("sportfun: token uri: %w", err)
	}
	raw, err := chain.CallContract(ctx, c.node, common.HexToAddress(contract), data)
	if err != nil {
		return "", fmt.Errorf("sportfun: token uri: %w", err)
	}
	vals, err := tokenABI.Unpack("uri", raw)
	if err != nil {
		return "", fmt.Errorf("sportfun: token uri: unpack: %w", err)
	}
	s, _ := vals[0].(string)
	return s, nil
}
