package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/sportfun"
)

var (
	tradeAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	marketAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")

	// testNow is block 240; blocks are one hour apart.
	testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

const (
	testHead    = 240
	blockTimeMs = int64(time.Hour / time.Millisecond)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), sportfun.PriceScale)
}

// fakeBlocks is a chain with one block per hour ending at testNow.
type fakeBlocks struct {
	headErr error
}

func genesisMs() int64 { return testNow.UnixMilli() - testHead*blockTimeMs }

func (f *fakeBlocks) Head(context.Context) (uint64, error) {
	if f.headErr != nil {
		return 0, f.headErr
	}
	return testHead, nil
}

func (f *fakeBlocks) FindBlockByTimestamp(_ context.Context, targetMs int64) (uint64, error) {
	d := targetMs - genesisMs()
	if d <= 0 {
		return 0, nil
	}
	n := (d + blockTimeMs - 1) / blockTimeMs
	return uint64(min(n, testHead)), nil
}

func (f *fakeBlocks) Timestamps(_ context.Context, blocks []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(blocks))
	for _, b := range blocks {
		out[b] = genesisMs() + int64(b)*blockTimeMs
	}
	return out, nil
}

type fakeLogs struct {
	mu    sync.Mutex
	logs  []types.Log
	err   error
	calls atomic.Int32
}

func (f *fakeLogs) add(t *testing.T, block uint64, topic common.Hash, trader string, arrays ...[]*big.Int) {
	t.Helper()
	data, err := sportfun.EventData(topic, arrays...)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, types.Log{
		Address:     tradeAddr,
		Topics:      []common.Hash{topic, common.BytesToHash(common.HexToAddress(trader).Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       uint(len(f.logs)),
	})
}

func (f *fakeLogs) buy(t *testing.T, block uint64, trader string, id int64, shares, currency *big.Int) {
	f.add(t, block, sportfun.BuyTopic, trader, []*big.Int{big.NewInt(id)}, []*big.Int{shares}, []*big.Int{currency})
}

func (f *fakeLogs) FetchLogs(_ context.Context, addresses []common.Address, topic0s []common.Hash, from, to uint64) ([]types.Log, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !slices.Contains(addresses, lg.Address) || !slices.Contains(topic0s, lg.Topics[0]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

type fakeUniverse struct {
	ids   []string
	err   error
	calls atomic.Int32
}

func (f *fakeUniverse) GetTokenUniverse(context.Context, domain.Sport, int) ([]string, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

type fakePrices struct {
	prices map[string]*big.Int
	err    error
}

func (f *fakePrices) QuotePrices(_ context.Context, _ common.Address, ids []*big.Int) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int)
	for _, id := range ids {
		if p, ok := f.prices[id.String()]; ok {
			out[id.String()] = p
		}
	}
	return out, f.err
}

type fakeMetadata struct {
	mu      sync.Mutex
	docs    map[string]*domain.TokenMetadata
	err     error
	fetched []string
	cached  []string
}

func (f *fakeMetadata) GetMetadata(_ context.Context, _ string, id string) (*domain.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[id], nil
}

func (f *fakeMetadata) Cached(_ context.Context, _ string, id string) *domain.TokenMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = append(f.cached, id)
	return f.docs[id]
}

func (f *fakeMetadata) Flush(context.Context) error { return nil }

type fakeFeed struct {
	feed *domain.FallbackFeed
}

func (f *fakeFeed) Players(context.Context, domain.Sport) (*domain.FallbackFeed, error) {
	if f.feed == nil {
		return nil, errors.New("feed down")
	}
	return f.feed, nil
}

type recordedAlert struct {
	event string
	title string
}

type fakeAlerts struct {
	mu   sync.Mutex
	sent []recordedAlert
}

func (f *fakeAlerts) Notify(_ context.Context, event, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedAlert{event: event, title: title})
	return nil
}

type fixture struct {
	blocks   *fakeBlocks
	logs     *fakeLogs
	universe *fakeUniverse
	prices   *fakePrices
	metadata *fakeMetadata
	feed     *fakeFeed
	alerts   *fakeAlerts
	lastGood *LastGoodStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lg := NewLastGoodStore(t.TempDir(), nil, "", testLogger())
	lg.now = func() time.Time { return testNow }
	return &fixture{
		blocks:   &fakeBlocks{},
		logs:     &fakeLogs{},
		universe: &fakeUniverse{},
		prices:   &fakePrices{prices: map[string]*big.Int{}},
		metadata: &fakeMetadata{docs: map[string]*domain.TokenMetadata{}},
		feed:     &fakeFeed{},
		alerts:   &fakeAlerts{},
		lastGood: lg,
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Blocks:   f.blocks,
		Logs:     f.logs,
		Universe: f.universe,
		Prices:   f.prices,
		Metadata: f.metadata,
		Fallback: f.feed,
		LastGood: f.lastGood,
		Alerts:   f.alerts,
	}
}

func (f *fixture) service(deps Deps) *Service {
	svc := NewService(Config{
		Sports: map[domain.Sport]Contracts{
			domain.SportNFL: {
				Trade:        tradeAddr,
				PlayerToken:  tokenAddr,
				Market:       marketAddr,
				LookbackDays: 30,
				FallbackFeed: true,
			},
		},
	}, deps, testLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}
