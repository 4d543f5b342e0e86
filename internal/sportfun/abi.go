// Package sportfun knows the Sport.fun contract surface: the trade and
// promotion events and the read-only calls used for prices and metadata.
package sportfun

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const marketABIJSON = `[
  {"type":"event","name":"PlayerTokensPurchase","anonymous":false,"inputs":[
    {"name":"buyer","type":"address","indexed":true},
    {"name":"playerTokenIds","type":"uint256[]","indexed":false},
    {"name":"playerTokenAmountsToBuy","type":"uint256[]","indexed":false},
    {"name":"currencySpent","type":"uint256[]","indexed":false}]},
  {"type":"event","name":"CurrencyPurchase","anonymous":false,"inputs":[
    {"name":"seller","type":"address","indexed":true},
    {"name":"playerTokenIds","type":"uint256[]","indexed":false},
    {"name":"playerTokenAmountsToSell","type":"uint256[]","indexed":false},
    {"name":"currencyReceived","type":"uint256[]","indexed":false}]},
  {"type":"event","name":"PromotionSharesGranted","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":true},
    {"name":"playerTokenIds","type":"uint256[]","indexed":false},
    {"name":"amounts","type":"uint256[]","indexed":false}]},
  {"type":"function","name":"getPrices","stateMutability":"view",
    "inputs":[{"name":"playerTokenIds","type":"uint256[]"}],
    "outputs":[{"name":"prices","type":"uint256[]"}]}
]`

const tokenABIJSON = `[
  {"type":"function","name":"uri","stateMutability":"view",
    "inputs":[{"name":"id","type":"uint256"}],
    "outputs":[{"name":"","type":"string"}]}
]`

var (
	marketABI = mustParseABI(marketABIJSON)
	tokenABI  = mustParseABI(tokenABIJSON)
)

var (
	BuyTopic       = marketABI.Events["PlayerTokensPurchase"].ID
	SellTopic      = marketABI.Events["CurrencyPurchase"].ID
	PromotionTopic = marketABI.Events["PromotionSharesGranted"].ID
)

// TradeTopics are the topic0 values of buy and sell events.
func TradeTopics() []common.Hash {
	return []common.Hash{BuyTopic, SellTopic}
}

// ActivityTopics are the topic0 values of every event that names token ids.
func ActivityTopics() []common.Hash {
	return []common.Hash{BuyTopic, SellTopic, PromotionTopic}
}

// EventData ABI-encodes the non-indexed payload of the event with the given
// topic0 from its parallel arrays.
func EventData(topic common.Hash, arrays ...[]*big.Int) ([]byte, error) {
	ev, err := marketABI.EventByID(topic)
	if err != nil {
		return nil, fmt.Errorf("sportfun: event data: %w", err)
	}
	args := make([]any, len(arrays))
	for i, a := range arrays {
		args[i] = a
	}
	return ev.Inputs.NonIndexed().Pack(args...)
}

// PackGetPrices encodes a getPrices call.
func PackGetPrices(ids []*big.Int) ([]byte, error) {
	return marketABI.Pack("getPrices", ids)
}

// UnpackGetPricesInput decodes the token ids of a getPrices calldata.
func UnpackGetPricesInput(data []byte) ([]*big.Int, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("sportfun: short calldata")
	}
	m, err := marketABI.MethodById(data[:4])
	if err != nil || m.Name != "getPrices" {
		return nil, fmt.Errorf("sportfun: not a getPrices call")
	}
	vals, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	ids, _ := vals[0].([]*big.Int)
	return ids, nil
}

// PackPrices encodes a getPrices return value.
func PackPrices(prices []*big.Int) ([]byte, error) {
	return marketABI.Methods["getPrices"].Outputs.Pack(prices)
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("sportfun: parse abi: %v", err))
	}
	return parsed
}
