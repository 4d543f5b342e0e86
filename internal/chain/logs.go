package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	// DefaultChunkSize is the starting eth_getLogs block span.
	DefaultChunkSize uint64 = 2500
	// MinChunkSize is the smallest span tried before an error is returned.
	MinChunkSize uint64 = 200
)

// LogFetcher pages eth_getLogs over a block range. Chunks are fetched
// sequentially; a failing chunk is retried at half the span until
// MinChunkSize.
type LogFetcher struct {
	node      Caller
	chunkSize uint64
	minChunk  uint64
	logger    *slog.Logger
}

// NewLogFetcher creates a fetcher with the default chunk bounds.
func NewLogFetcher(node Caller, logger *slog.Logger) *LogFetcher {
	return &LogFetcher{
		node:      node,
		chunkSize: DefaultChunkSize,
		minChunk:  MinChunkSize,
		logger:    logger.With(slog.String("component", "log_fetcher")),
	}
}

// FetchLogs returns every log emitted by addresses with a topic0 in topic0s
// between from and to inclusive, in block order. The reduced chunk size after
// a failure is kept for the rest of the range.
func (f *LogFetcher) FetchLogs(ctx context.Context, addresses []common.Address, topic0s []common.Hash, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, nil
	}

	var out []types.Log
	chunk := f.chunkSize
	start := from
	for start <= to {
		end := start + chunk - 1
		if end > to || end < start {
			end = to
		}

		logs, err := GetLogs(ctx, f.node, addresses, topic0s, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if chunk <= f.minChunk {
				return nil, fmt.Errorf("chain: fetch logs at minimum chunk %d: %w", chunk, err)
			}
			chunk = max(chunk/2, f.minChunk)
			f.logger.DebugContext(ctx, "log chunk failed, halving",
				slog.Uint64("from", start),
				slog.Uint64("to", end),
				slog.Uint64("next_chunk", chunk),
				slog.String("error", err.Error()),
			)
			continue
		}

		out = append(out, logs...)
		if end == to {
			break
		}
		start = end + 1
	}
	return out, nil
}
