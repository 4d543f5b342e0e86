// Package universe resolves the full set of token ids ever traded for a
// sport. Results are cached on disk per sport; a recompute scans trade and
// promotion logs, then raw ERC-1155 transfers, then the provider's transfer
// index, and an empty answer never replaces a non-empty cached one.
package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/sportfun/internal/chain"
	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/sportfun"
)

const maxTransferPages = 100

// LogSource fetches logs over a block range.
type LogSource interface {
	FetchLogs(ctx context.Context, addresses []common.Address, topic0s []common.Hash, from, to uint64) ([]types.Log, error)
}

// BlockFinder maps a wall-clock time to a block.
type BlockFinder interface {
	FindBlockByTimestamp(ctx context.Context, targetMs int64) (uint64, error)
}

// SportContracts is the contract set scanned for one sport.
type SportContracts struct {
	Trade       common.Address
	Promotion   common.Address
	PlayerToken common.Address
	Epoch       time.Time
}

// Config holds the resolver wiring.
type Config struct {
	Dir            string
	TTL            time.Duration
	AssetTransfers bool
	Sports         map[domain.Sport]SportContracts
}

// Resolver implements GetTokenUniverse.
type Resolver struct {
	cfg    Config
	node   chain.Caller
	logs   LogSource
	blocks BlockFinder
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, node chain.Caller, logs LogSource, blocks BlockFinder, logger *slog.Logger) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	return &Resolver{
		cfg:    cfg,
		node:   node,
		logs:   logs,
		blocks: blocks,
		logger: logger.With(slog.String("component", "universe")),
		now:    time.Now,
	}
}

// cacheFile is the on-disk layout of tokens-<sport>.json.
type cacheFile struct {
	TokenIDs  []string `json:"tokenIds"`
	UpdatedAt int64    `json:"updatedAt"`
}

// GetTokenUniverse returns the numerically sorted token ids of sport.
func (r *Resolver) GetTokenUniverse(ctx context.Context, sport domain.Sport, lookbackDays int) ([]string, error) {
	contracts, ok := r.cfg.Sports[sport]
	if !ok {
		return nil, fmt.Errorf("universe: %w: %s", domain.ErrUnknownSport, sport)
	}

	cached, hasCache := r.load(sport)
	if hasCache && r.now().Sub(time.UnixMilli(cached.UpdatedAt)) < r.cfg.TTL {
		return cached.TokenIDs, nil
	}

	ids, err := r.compute(ctx, sport, contracts, lookbackDays)
	if len(ids) == 0 {
		if hasCache && len(cached.TokenIDs) > 0 {
			attrs := []any{
				slog.String("sport", string(sport)),
				slog.Int("tokens", len(cached.TokenIDs)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			r.logger.WarnContext(ctx, "universe recompute empty, using stale cache", attrs...)
			return cached.TokenIDs, nil
		}
		if err != nil {
			return nil, err
		}
		return []string{}, nil
	}

	if werr := r.save(sport, ids); werr != nil {
		r.logger.WarnContext(ctx, "persist universe failed",
			slog.String("sport", string(sport)),
			slog.String("error", werr.Error()),
		)
	}
	return ids, nil
}

func (r *Resolver) compute(ctx context.Context, sport domain.Sport, c SportContracts, lookbackDays int) ([]string, error) {
	startMs := r.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour).UnixMilli()
	if epoch := c.Epoch.UnixMilli(); !c.Epoch.IsZero() && epoch > startMs {
		startMs = epoch
	}
	from, err := r.blocks.FindBlockByTimestamp(ctx, startMs)
	if err != nil {
		return nil, fmt.Errorf("universe: start block: %w", err)
	}
	latest, err := chain.BlockNumber(ctx, r.node)
	if err != nil {
		return nil, fmt.Errorf("universe: head: %w", err)
	}

	var errs []error
	set := make(map[string]*big.Int)

	// 1. trade and promotion events
	addrs := []common.Address{c.Trade}
	if c.Promotion != (common.Address{}) && c.Promotion != c.Trade {
		addrs = append(addrs, c.Promotion)
	}
	logs, err := r.logs.FetchLogs(ctx, addrs, sportfun.ActivityTopics(), from, latest)
	if err != nil {
		errs = append(errs, fmt.Errorf("activity logs: %w", err))
	}
	events, skipped := sportfun.DecodeLogs(logs)
	if skipped > 0 {
		r.logger.DebugContext(ctx, "skipped undecodable logs", slog.Int("count", skipped))
	}
	for _, ev := range events {
		addID(set, ev.TokenID)
	}

	// 2. raw ERC-1155 transfers
	if len(set) == 0 && c.PlayerToken != (common.Address{}) {
		r.logger.InfoContext(ctx, "no activity logs, scanning transfers", slog.String("sport", string(sport)))
		tlogs, err := r.logs.FetchLogs(ctx, []common.Address{c.PlayerToken}, chain.TransferTopics(), from, latest)
		if err != nil {
			errs = append(errs, fmt.Errorf("transfer logs: %w", err))
		}
		for _, lg := range tlogs {
			ids, err := chain.TransferTokenIDs(lg)
			if err != nil {
				continue
			}
			for _, id := range ids {
				addID(set, id.String())
			}
		}
	}

	// 3. provider transfer index
	if len(set) == 0 && r.cfg.AssetTransfers && c.PlayerToken != (common.Address{}) {
		if err := r.scanAssetTransfers(ctx, c.PlayerToken, from, latest, set); err != nil {
			errs = append(errs, err)
		}
	}

	ids := sortedIDs(set)
	if len(ids) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("universe: %s: %w", sport, errors.Join(errs...))
	}
	return ids, nil
}

func (r *Resolver) scanAssetTransfers(ctx context.Context, contract common.Address, from, to uint64, set map[string]*big.Int) error {
	pageKey := ""
	for page := 0; page < maxTransferPages; page++ {
		res, err := chain.AssetTransfers(ctx, r.node, contract, from, to, pageKey)
		if err != nil {
			return fmt.Errorf("asset transfers: %w", err)
		}
		for _, id := range res.TokenIDs {
			addID(set, id.String())
		}
		if res.PageKey == "" {
			return nil
		}
		pageKey = res.PageKey
	}
	r.logger.WarnContext(ctx, "asset transfer pagination truncated", slog.Int("pages", maxTransferPages))
	return nil
}

func addID(set map[string]*big.Int, id string) {
	if _, ok := set[id]; ok {
		return
	}
	v, ok := new(big.Int).SetString(id, 10)
	if !ok || v.Sign() <= 0 {
		return
	}
	set[id] = v
}

func sortedIDs(set map[string]*big.Int) []string {
	vals := make([]*big.Int, 0, len(set))
	for _, v := range set {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].Cmp(vals[j]) < 0 })
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

func (r *Resolver) path(sport domain.Sport) string {
	return filepath.Join(r.cfg.Dir, "tokens-"+string(sport)+".json")
}

// load reads the cache file. A missing or corrupt file is a miss.
func (r *Resolver) load(sport domain.Sport) (cacheFile, bool) {
	raw, err := os.ReadFile(r.path(sport))
	if err != nil {
		return cacheFile{}, false
	}
	var cf cacheFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return cacheFile{}, false
	}
	return cf, true
}

// save overwrites the cache file for sport.
func (r *Resolver) save(sport domain.Sport, ids []string) error {
	raw, err := json.Marshal(cacheFile{TokenIDs: ids, UpdatedAt: r.now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path(sport), raw, 0o644)
}
