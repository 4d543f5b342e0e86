// Package chaintest provides an in-memory JSON-RPC node for tests of the
// chain-reading packages.
package chaintest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrRangeTooLarge is returned by eth_getLogs when the queried span exceeds
// MaxLogRange.
var ErrRangeTooLarge = errors.New("query returned more than 10000 results")

// Node is a fake chain. Block i has timestamp Timestamps[i] (seconds). All
// fields may be set directly before use; methods are safe for concurrent use.
type Node struct {
	mu sync.Mutex

	Timestamps []int64
	Logs       []types.Log
	// MaxLogRange, when non-zero, fails eth_getLogs spans larger than it.
	MaxLogRange uint64
	// LogsErr, when set, fails every eth_getLogs call.
	LogsErr error
	// LogsHook, when set, may fail an eth_getLogs call for a given filter.
	LogsHook func(addresses []common.Address, topic0s []common.Hash, from, to uint64) error
	// EthCall answers eth_call.
	EthCall func(to common.Address, data []byte) ([]byte, error)
	// TransferPages are returned in order by alchemy_getAssetTransfers; each
	// page lists hex token ids.
	TransferPages [][]string
	// TransfersErr fails alchemy_getAssetTransfers.
	TransfersErr error

	calls map[string]int
}

// NewNode creates a chain of n blocks starting at genesisSec and spaced
// blockTimeSec apart.
func NewNode(n int, genesisSec, blockTimeSec int64) *Node {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = genesisSec + int64(i)*blockTimeSec
	}
	return &Node{Timestamps: ts, calls: make(map[string]int)}
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// ResetCalls clears the call counters.
func (n *Node) ResetCalls() {
	n.mu.Lock()
	n.calls = make(map[string]int)
	n.mu.Unlock()
}

// AddLog appends a log at block with the given emitter, topics and data.
func (n *Node) AddLog(block uint64, addr common.Address, topics []common.Hash, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Logs = append(n.Logs, types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(len(n.Logs) + 1))),
		Index:       uint(len(n.Logs)),
	})
}

// Call implements chain.Caller.
func (n *Node) Call(ctx context.Context, result any, method string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[method]++
	n.mu.Unlock()

	var (
		out any
		err error
	)
	switch method {
	case "eth_blockNumber":
		out = hexutil.Uint64(len(n.Timestamps) - 1)
	case "eth_getBlockByNumber":
		out, err = n.block(args)
	case "eth_getLogs":
		out, err = n.getLogs(args)
	case "eth_call":
		out, err = n.ethCall(args)
	case "alchemy_getAssetTransfers":
		out, err = n.assetTransfers(args)
	default:
		err = fmt.Errorf("chaintest: method %s not supported", method)
	}
	if err != nil {
		return err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (n *Node) block(args []any) (any, error) {
	tag, _ := args[0].(string)
	num, err := hexutil.DecodeUint64(tag)
	if err != nil {
		return nil, err
	}
	if num >= uint64(len(n.Timestamps)) {
		return nil, nil
	}
	return map[string]any{
		"number":    hexutil.Uint64(num),
		"timestamp": hexutil.Uint64(n.Timestamps[num]),
	}, nil
}

type filter struct {
	FromBlock hexutil.Uint64   `json:"fromBlock"`
	ToBlock   hexutil.Uint64   `json:"toBlock"`
	Address   []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
}

func decodeArg(arg any, into any) error {
	raw, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func (n *Node) getLogs(args []any) (any, error) {
	var f filter
	if err := decodeArg(args[0], &f); err != nil {
		return nil, err
	}
	from, to := uint64(f.FromBlock), uint64(f.ToBlock)
	var topic0s []common.Hash
	if len(f.Topics) > 0 {
		topic0s = f.Topics[0]
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.LogsErr != nil {
		return nil, n.LogsErr
	}
	if n.MaxLogRange > 0 && to-from+1 > n.MaxLogRange {
		return nil, ErrRangeTooLarge
	}
	if n.LogsHook != nil {
		if err := n.LogsHook(f.Address, topic0s, from, to); err != nil {
			return nil, err
		}
	}

	out := []types.Log{}
	for _, lg := range n.Logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(f.Address) > 0 && !containsAddr(f.Address, lg.Address) {
			continue
		}
		if len(topic0s) > 0 && (len(lg.Topics) == 0 || !containsHash(topic0s, lg.Topics[0])) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (n *Node) ethCall(args []any) (any, error) {
	var msg struct {
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}
	if err := decodeArg(args[0], &msg); err != nil {
		return nil, err
	}
	if n.EthCall == nil {
		return nil, errors.New("execution reverted")
	}
	res, err := n.EthCall(msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(res), nil
}

func (n *Node) assetTransfers(args []any) (any, error) {
	if n.TransfersErr != nil {
		return nil, n.TransfersErr
	}
	var params struct {
		PageKey string `json:"pageKey"`
	}
	if err := decodeArg(args[0], &params); err != nil {
		return nil, err
	}
	page := 0
	if params.PageKey != "" {
		p, err := strconv.Atoi(params.PageKey)
		if err != nil {
			return nil, err
		}
		page = p
	}

	type meta struct {
		TokenID string `json:"tokenId"`
	}
	type transfer struct {
		ERC1155Metadata []meta `json:"erc1155Metadata"`
	}
	res := struct {
		Transfers []transfer `json:"transfers"`
		PageKey   string     `json:"pageKey,omitempty"`
	}{Transfers: []transfer{}}
	if page < len(n.TransferPages) {
		for _, id := range n.TransferPages[page] {
			res.Transfers = append(res.Transfers, transfer{ERC1155Metadata: []meta{{TokenID: id}}})
		}
		if page+1 < len(n.TransferPages) {
			res.PageKey = strconv.Itoa(page + 1)
		}
	}
	return res, nil
}

func containsAddr(set []common.Address, a common.Address) bool {
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}

func containsHash(set []common.Hash, h common.Hash) bool {
	for _, s := range set {
		if s == h {
			return true
		}
	}
	return false
}
