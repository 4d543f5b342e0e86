package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const erc1155TransferABI = `[
  {"type":"event","name":"TransferSingle","anonymous":false,"inputs":[
    {"name":"operator","type":"address","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"id","type":"uint256","indexed":false},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"TransferBatch","anonymous":false,"inputs":[
    {"name":"operator","type":"address","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"ids","type":"uint256[]","indexed":false},
    {"name":"values","type":"uint256[]","indexed":false}]}
]`

var erc1155ABI = mustParseABI(erc1155TransferABI)

var (
	TransferSingleTopic = erc1155ABI.Events["TransferSingle"].ID
	TransferBatchTopic  = erc1155ABI.Events["TransferBatch"].ID
)

// TransferTopics are the topic0 values of the ERC-1155 transfer events.
func TransferTopics() []common.Hash {
	return []common.Hash{TransferSingleTopic, TransferBatchTopic}
}

// TransferTokenIDs returns the token ids moved by an ERC-1155 transfer log.
// Logs of other shapes yield nil.
func TransferTokenIDs(lg types.Log) ([]*big.Int, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}
	switch lg.Topics[0] {
	case TransferSingleTopic:
		vals, err := erc1155ABI.Events["TransferSingle"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil {
			return nil, fmt.Errorf("chain: unpack TransferSingle: %w", err)
		}
		id, ok := vals[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("chain: TransferSingle id has type %T", vals[0])
		}
		return []*big.Int{id}, nil
	case TransferBatchTopic:
		vals, err := erc1155ABI.Events["TransferBatch"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil {
			return nil, fmt.Errorf("chain: unpack TransferBatch: %w", err)
		}
		ids, ok := vals[0].([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("chain: TransferBatch ids has type %T", vals[0])
		}
		return ids, nil
	default:
		return nil, nil
	}
}

// TransferBatchData ABI-encodes the non-indexed payload of a TransferBatch log.
func TransferBatchData(ids, values []*big.Int) ([]byte, error) {
	return erc1155ABI.Events["TransferBatch"].Inputs.NonIndexed().Pack(ids, values)
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}
