// Package chain holds the typed node queries the snapshot pipeline needs:
// block timestamps, chunked log scans, contract reads and transfer
// enumeration.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Caller is the JSON-RPC surface consumed by this package. It is satisfied by
// *chainrpc.Client and by test fakes.
type Caller interface {
	Call(ctx context.Context, result any, method string, args ...any) error
}

// LogFilter is the eth_getLogs filter object.
type LogFilter struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Address   []common.Address `json:"address,omitempty"`
	Topics    [][]common.Hash  `json:"topics,omitempty"`
}

type callMsg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

type blockHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// BlockNumber returns the current chain head.
func BlockNumber(ctx context.Context, c Caller) (uint64, error) {
	var n hexutil.Uint64
	if err := c.Call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return uint64(n), nil
}

// BlockTimestampMs returns the timestamp of block n in milliseconds.
func BlockTimestampMs(ctx context.Context, c Caller, n uint64) (int64, error) {
	var hdr *blockHeader
	if err := c.Call(ctx, &hdr, "eth_getBlockByNumber", hexutil.EncodeUint64(n), false); err != nil {
		return 0, fmt.Errorf("chain: get block %d: %w", n, err)
	}
	if hdr == nil {
		return 0, fmt.Errorf("chain: get block %d: %w", n, domain.ErrNotFound)
	}
	return int64(hdr.Timestamp) * 1000, nil
}

// GetLogs runs a single eth_getLogs query over [from, to].
func GetLogs(ctx context.Context, c Caller, addresses []common.Address, topic0s []common.Hash, from, to uint64) ([]types.Log, error) {
	filter := LogFilter{
		FromBlock: hexutil.EncodeUint64(from),
		ToBlock:   hexutil.EncodeUint64(to),
		Address:   addresses,
	}
	if len(topic0s) > 0 {
		filter.Topics = [][]common.Hash{topic0s}
	}
	var logs []types.Log
	if err := c.Call(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, fmt.Errorf("chain: get logs [%d, %d]: %w", from, to, err)
	}
	return logs, nil
}

// CallContract runs an eth_call against the latest block.
func CallContract(ctx context.Context, c Caller, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.Call(ctx, &out, "eth_call", callMsg{To: to, Data: data}, "latest"); err != nil {
		return nil, fmt.Errorf("chain: eth_call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// AssetTransferPage is one page of the provider's transfer enumeration.
type AssetTransferPage struct {
	TokenIDs []*big.Int
	PageKey  string
}

type assetTransfersParams struct {
	FromBlock         string           `json:"fromBlock"`
	ToBlock           string           `json:"toBlock"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	Category          []string         `json:"category"`
	WithMetadata      bool             `json:"withMetadata"`
	MaxCount          string           `json:"maxCount"`
	PageKey           string           `json:"pageKey,omitempty"`
}

type assetTransfersResult struct {
	Transfers []struct {
		TokenID         string `json:"tokenId"`
		ERC1155Metadata []struct {
			TokenID string `json:"tokenId"`
		} `json:"erc1155Metadata"`
	} `json:"transfers"`
	PageKey string `json:"pageKey"`
}

// AssetTransfers fetches one page of ERC-1155 transfers for contract using
// alchemy_getAssetTransfers. An empty PageKey in the result means there are no
// further pages.
func AssetTransfers(ctx context.Context, c Caller, contract common.Address, from, to uint64, pageKey string) (AssetTransferPage, error) {
	params := assetTransfersParams{
		FromBlock:         hexutil.EncodeUint64(from),
		ToBlock:           hexutil.EncodeUint64(to),
		ContractAddresses: []common.Address{contract},
		Category:          []string{"erc1155"},
		MaxCount:          hexutil.EncodeUint64(1000),
		PageKey:           pageKey,
	}
	var res assetTransfersResult
	if err := c.Call(ctx, &res, "alchemy_getAssetTransfers", params); err != nil {
		return AssetTransferPage{}, fmt.Errorf("chain: asset transfers: %w", err)
	}

	page := AssetTransferPage{PageKey: res.PageKey}
	for _, t := range res.Transfers {
		ids := make([]string, 0, len(t.ERC1155Metadata)+1)
		for _, m := range t.ERC1155Metadata {
			ids = append(ids, m.TokenID)
		}
		if len(ids) == 0 && t.TokenID != "" {
			ids = append(ids, t.TokenID)
		}
		for _, raw := range ids {
			if id, ok := parseQuantity(raw); ok {
				page.TokenIDs = append(page.TokenIDs, id)
			}
		}
	}
	return page, nil
}

// parseQuantity accepts hex ("0x..") or decimal integers.
func parseQuantity(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	if has0x(s) {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
