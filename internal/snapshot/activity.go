package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/sportfun"
)

// activity holds the decoded trades of one build in chronological order.
type activity struct {
	// window holds trades at or after the window start.
	window []domain.TradeEvent
	// earlier holds trades of the older slice, before the window. It covers
	// both the trend range and the reference-price lookback.
	earlier []domain.TradeEvent
}

func (a activity) all() []domain.TradeEvent {
	out := make([]domain.TradeEvent, 0, len(a.earlier)+len(a.window))
	out = append(out, a.earlier...)
	return append(out, a.window...)
}

// fetchActivity loads the window trades and the older slice starting at
// olderStartMs. The returned error reports a failed window fetch; the build
// continues without window trades. Failures of the older slice only cost
// trend history and reference prices and are logged.
func (s *Service) fetchActivity(ctx context.Context, c Contracts, windowStartMs, olderStartMs int64, logger *slog.Logger) (activity, error) {
	var act activity

	head, err := s.deps.Blocks.Head(ctx)
	if err != nil {
		return act, fmt.Errorf("snapshot: head: %w", err)
	}
	windowFrom, err := s.deps.Blocks.FindBlockByTimestamp(ctx, windowStartMs)
	if err != nil {
		return act, fmt.Errorf("snapshot: window start block: %w", err)
	}

	var windowErr error
	events, err := s.fetchTrades(ctx, c.Trade, windowFrom, head, logger)
	if err != nil {
		windowErr = err
	} else {
		act.window = since(events, windowStartMs)
	}

	if olderStartMs >= windowStartMs || windowFrom == 0 {
		return act, windowErr
	}
	olderFrom, err := s.deps.Blocks.FindBlockByTimestamp(ctx, olderStartMs)
	if err != nil {
		logger.WarnContext(ctx, "older slice start block lookup failed", slog.String("error", err.Error()))
		return act, windowErr
	}
	if olderFrom < windowFrom {
		older, err := s.fetchTrades(ctx, c.Trade, olderFrom, windowFrom-1, logger)
		if err != nil {
			logger.WarnContext(ctx, "older slice fetch failed", slog.String("error", err.Error()))
		} else {
			act.earlier = before(since(older, olderStartMs), windowStartMs)
		}
	}
	return act, windowErr
}

// fetchTrades fetches buy and sell logs of [from, to] in parallel, decodes
// them in block order and stamps each trade with its block time.
func (s *Service) fetchTrades(ctx context.Context, contract common.Address, from, to uint64, logger *slog.Logger) ([]domain.TradeEvent, error) {
	if from > to {
		return nil, nil
	}
	addrs := []common.Address{contract}

	var buys, sells []types.Log
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buys, err = s.deps.Logs.FetchLogs(gctx, addrs, []common.Hash{sportfun.BuyTopic}, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		sells, err = s.deps.Logs.FetchLogs(gctx, addrs, []common.Hash{sportfun.SellTopic}, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot: fetch trades %d-%d: %w", from, to, err)
	}

	logs := append(buys, sells...)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events, skipped := sportfun.DecodeLogs(logs)
	if skipped > 0 {
		logger.WarnContext(ctx, "skipped undecodable logs",
			slog.Int("skipped", skipped),
			slog.Uint64("from", from),
			slog.Uint64("to", to),
		)
	}

	trades := events[:0]
	blocks := make([]uint64, 0, len(events))
	for _, ev := range events {
		if !ev.IsTrade() {
			continue
		}
		trades = append(trades, ev)
		blocks = append(blocks, ev.BlockNumber)
	}
	if len(trades) == 0 {
		return nil, nil
	}

	stamps, err := s.deps.Blocks.Timestamps(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("snapshot: trade timestamps: %w", err)
	}
	for i := range trades {
		trades[i].TimestampMs = stamps[trades[i].BlockNumber]
	}
	return trades, nil
}

func since(events []domain.TradeEvent, startMs int64) []domain.TradeEvent {
	out := make([]domain.TradeEvent, 0, len(events))
	for _, ev := range events {
		if ev.TimestampMs >= startMs {
			out = append(out, ev)
		}
	}
	return out
}

func before(events []domain.TradeEvent, endMs int64) []domain.TradeEvent {
	out := make([]domain.TradeEvent, 0, len(events))
	for _, ev := range events {
		if ev.TimestampMs < endMs {
			out = append(out, ev)
		}
	}
	return out
}

// aggregate reduces chronologically ordered trades to per-token rollups.
func aggregate(events []domain.TradeEvent) map[string]*domain.TokenAggregate {
	out := make(map[string]*domain.TokenAggregate)
	for _, ev := range events {
		a, ok := out[ev.TokenID]
		if !ok {
			a = &domain.TokenAggregate{TokenID: ev.TokenID, VolumeShares: new(big.Int)}
			out[ev.TokenID] = a
		}
		a.Trades++
		if ev.ShareAmount != nil {
			a.VolumeShares.Add(a.VolumeShares, new(big.Int).Abs(ev.ShareAmount))
		}
		if a.FirstTradeAt == 0 || ev.TimestampMs < a.FirstTradeAt {
			a.FirstTradeAt = ev.TimestampMs
		}
		a.LastTradeAt = max(a.LastTradeAt, ev.TimestampMs)
		if ev.PriceUsdcPerShare != nil {
			if a.FirstPrice == nil {
				a.FirstPrice = ev.PriceUsdcPerShare
			}
			a.LastPrice = ev.PriceUsdcPerShare
		}
	}
	return out
}

// lastPrices returns the last known trade price per token.
func lastPrices(events []domain.TradeEvent) map[string]*big.Int {
	out := make(map[string]*big.Int)
	for _, ev := range events {
		if ev.PriceUsdcPerShare != nil {
			out[ev.TokenID] = ev.PriceUsdcPerShare
		}
	}
	return out
}
