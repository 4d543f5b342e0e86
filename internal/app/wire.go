package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/sportfun/internal/blob/s3"
	"github.com/alanyoungcy/sportfun/internal/cache"
	"github.com/alanyoungcy/sportfun/internal/cache/redis"
	"github.com/alanyoungcy/sportfun/internal/chain"
	"github.com/alanyoungcy/sportfun/internal/config"
	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/metadata"
	"github.com/alanyoungcy/sportfun/internal/notify"
	"github.com/alanyoungcy/sportfun/internal/platform/chainrpc"
	"github.com/alanyoungcy/sportfun/internal/platform/fallbackfeed"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
	"github.com/alanyoungcy/sportfun/internal/sportfun"
	"github.com/alanyoungcy/sportfun/internal/store/postgres"
	"github.com/alanyoungcy/sportfun/internal/universe"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Snapshots *snapshot.Service
	Sports    []domain.Sport

	// History is nil when Postgres is disabled.
	History domain.SnapshotHistoryStore

	// Bus is Redis pub/sub when Redis is enabled, otherwise in-process.
	Bus domain.SnapshotBus

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Sports: cfg.SportTags()}

	// --- Chain node ---
	node, err := chainrpc.Dial(ctx, chainrpc.Config{
		URL:         cfg.RPC.URL,
		MaxAttempts: cfg.RPC.MaxAttempts,
		BaseBackoff: cfg.RPC.BaseBackoff.Duration,
		MaxBackoff:  cfg.RPC.MaxBackoff.Duration,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: rpc: %w", err)
	}
	closers = append(closers, node.Close)

	blocks := chain.NewBlockLocator(node, cfg.Cache.BlockTargetTTL.Duration, logger)
	logs := chain.NewLogFetcher(node, logger)
	contracts := sportfun.NewContracts(node)

	universeSports := make(map[domain.Sport]universe.SportContracts, len(deps.Sports))
	snapshotSports := make(map[domain.Sport]snapshot.Contracts, len(deps.Sports))
	for _, s := range deps.Sports {
		sc, _ := cfg.Sport(s)
		uc := universe.SportContracts{
			Trade:       common.HexToAddress(sc.TradeContract),
			Promotion:   common.HexToAddress(sc.Promotion()),
			PlayerToken: common.HexToAddress(sc.PlayerTokenContract),
			Epoch:       sc.UniverseEpoch,
		}
		universeSports[s] = uc
		snapshotSports[s] = snapshot.Contracts{
			Trade:        uc.Trade,
			PlayerToken:  uc.PlayerToken,
			Market:       common.HexToAddress(sc.MarketContract),
			LookbackDays: sc.LookbackDays,
			FallbackFeed: sc.FallbackFeed,
		}
	}

	tokens := universe.NewResolver(universe.Config{
		Dir:            cfg.Cache.Dir,
		TTL:            cfg.Cache.UniverseTTL.Duration,
		AssetTransfers: cfg.RPC.AssetTransfers,
		Sports:         universeSports,
	}, node, logs, blocks, logger)

	// --- Redis (optional shared tier, metadata cache, bus) ---
	var (
		remote    domain.RemoteCache
		metaCache domain.MetadataCache = metadata.NewFileCache(cfg.Cache.Dir)
	)
	deps.Bus = cache.NewLocalBus()
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		remote = redis.NewByteCache(redisClient)
		deps.Bus = redis.NewSnapshotBus(redisClient)
		if cfg.Metadata.Store == "redis" {
			metaCache = redis.NewMetadataCache(redisClient, cfg.Metadata.TTL.Duration)
		}
	}

	meta := metadata.NewResolver(metadata.Config{
		URITemplate:    cfg.Metadata.URITemplate,
		IPFSGateway:    cfg.Metadata.IPFSGateway,
		ArweaveGateway: cfg.Metadata.ArweaveGateway,
		FetchTimeout:   cfg.Metadata.FetchTimeout.Duration,
		TTL:            cfg.Metadata.TTL.Duration,
	}, metaCache, contracts, logger)

	overrides := make([]metadata.Override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		overrides = append(overrides, metadata.Override{Contract: o.Contract, TokenID: o.TokenID, Name: o.Name})
	}

	// --- S3 mirror of last-good snapshots ---
	var mirror snapshot.Mirror
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		mirror = s3Client.Mirror()
	}

	// --- PostgreSQL snapshot history ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.History = postgres.NewSnapshotHistoryStore(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Snapshot service ---
	sdeps := snapshot.Deps{
		Blocks:    blocks,
		Logs:      logs,
		Universe:  tokens,
		Prices:    contracts,
		Metadata:  meta,
		Overrides: metadata.NewOverrides(overrides),
		Cache:     cache.New(cfg.Cache.Dir, remote, logger),
		LastGood:  snapshot.NewLastGoodStore(cfg.Cache.Dir, mirror, cfg.S3.Prefix, logger),
		History:   deps.History,
	}
	if cfg.FallbackFeed.URL != "" {
		sdeps.Fallback = fallbackfeed.NewClient(cfg.FallbackFeed.URL, cfg.FallbackFeed.Timeout.Duration)
	}
	if deps.Notifier.Enabled() {
		sdeps.Alerts = deps.Notifier
	}

	deps.Snapshots = snapshot.NewService(snapshot.Config{
		SnapshotTTL:         cfg.Cache.SnapshotTTL.Duration,
		LastGoodMaxAge:      cfg.Cache.LastGoodMaxAge.Duration,
		MetadataConcurrency: cfg.Metadata.Concurrency,
		Defaults: snapshot.Options{
			WindowHours:   cfg.Snapshot.WindowHours,
			TrendDays:     cfg.Snapshot.TrendDays,
			MaxTokens:     cfg.Snapshot.MaxTokens,
			MetadataLimit: cfg.Snapshot.MetadataLimit,
		},
		Sports: snapshotSports,
	}, sdeps, logger)

	return deps, cleanup, nil
}
