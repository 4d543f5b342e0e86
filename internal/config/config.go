// Package config defines the top-level configuration for the sportfun market
// service and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPORTFUN_* environment variables.
type Config struct {
	RPC          RPCConfig              `toml:"rpc"`
	Sports       map[string]SportConfig `toml:"sports"`
	Metadata     MetadataConfig         `toml:"metadata"`
	FallbackFeed FallbackFeedConfig     `toml:"fallback_feed"`
	Overrides    []OverrideConfig       `toml:"overrides"`
	Cache        CacheConfig            `toml:"cache"`
	Snapshot     SnapshotConfig         `toml:"snapshot"`
	Redis        RedisConfig            `toml:"redis"`
	Postgres     PostgresConfig         `toml:"postgres"`
	S3           S3Config               `toml:"s3"`
	Server       ServerConfig           `toml:"server"`
	Notify       NotifyConfig           `toml:"notify"`
	Mode         string                 `toml:"mode"`
	LogLevel     string                 `toml:"log_level"`
}

// RPCConfig holds the JSON-RPC node endpoint and retry policy.
type RPCConfig struct {
	URL         string   `toml:"url"`
	MaxAttempts int      `toml:"max_attempts"`
	BaseBackoff duration `toml:"base_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
	// AssetTransfers enables the provider-specific alchemy_getAssetTransfers
	// enumeration as the last universe fallback.
	AssetTransfers bool `toml:"asset_transfers"`
}

// SportConfig holds the contract set for one sport.
type SportConfig struct {
	// TradeContract emits the buy and sell events.
	TradeContract string `toml:"trade_contract"`
	// PromotionContract emits promotional share grants. Defaults to
	// TradeContract when empty.
	PromotionContract string `toml:"promotion_contract"`
	// PlayerTokenContract is the ERC-1155 player share token.
	PlayerTokenContract string `toml:"player_token_contract"`
	// MarketContract quotes current AMM prices.
	MarketContract string `toml:"market_contract"`
	// UniverseEpoch is the earliest time the universe scan ever looks at.
	UniverseEpoch time.Time `toml:"universe_epoch"`
	LookbackDays  int       `toml:"lookback_days"`
	// FallbackFeed enables the external metadata feed for this sport.
	FallbackFeed bool `toml:"fallback_feed"`
}

// Promotion returns the promotion contract, falling back to the trade contract.
func (s SportConfig) Promotion() string {
	if s.PromotionContract != "" {
		return s.PromotionContract
	}
	return s.TradeContract
}

// MetadataConfig controls on-chain metadata resolution.
type MetadataConfig struct {
	// URITemplate overrides the contract's uri() result when set. "{id}" is
	// substituted per ERC-1155.
	URITemplate    string   `toml:"uri_template"`
	IPFSGateway    string   `toml:"ipfs_gateway"`
	ArweaveGateway string   `toml:"arweave_gateway"`
	FetchTimeout   duration `toml:"fetch_timeout"`
	TTL            duration `toml:"ttl"`
	Concurrency    int      `toml:"concurrency"`
	// Store selects the cache backend: "file" or "redis".
	Store string `toml:"store"`
}

// FallbackFeedConfig holds the external metadata feed endpoint.
type FallbackFeedConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// OverrideConfig is one manual name override.
type OverrideConfig struct {
	Contract string `toml:"contract"`
	TokenID  string `toml:"token_id"`
	Name     string `toml:"name"`
}

// CacheConfig holds cache locations and freshness bounds.
type CacheConfig struct {
	Dir            string   `toml:"dir"`
	SnapshotTTL    duration `toml:"snapshot_ttl"`
	LastGoodMaxAge duration `toml:"last_good_max_age"`
	UniverseTTL    duration `toml:"universe_ttl"`
	BlockTargetTTL duration `toml:"block_target_ttl"`
}

// SnapshotConfig holds default build parameters and the refresh cadence.
type SnapshotConfig struct {
	WindowHours     int      `toml:"window_hours"`
	TrendDays       int      `toml:"trend_days"`
	MaxTokens       int      `toml:"max_tokens"`
	MetadataLimit   int      `toml:"metadata_limit"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for snapshot history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters used to mirror the
// last-known-good snapshots.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as a Bearer token or X-Sportfun-Key header
	// on every route except health.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			URL:         "https://mainnet.base.org",
			MaxAttempts: 4,
			BaseBackoff: duration{250 * time.Millisecond},
			MaxBackoff:  duration{4 * time.Second},
		},
		Sports: map[string]SportConfig{},
		Metadata: MetadataConfig{
			IPFSGateway:    "https://ipfs.io/ipfs/",
			ArweaveGateway: "https://arweave.net/",
			FetchTimeout:   duration{8 * time.Second},
			TTL:            duration{24 * time.Hour},
			Concurrency:    6,
			Store:          "file",
		},
		FallbackFeed: FallbackFeedConfig{
			Timeout: duration{10 * time.Second},
		},
		Cache: CacheConfig{
			Dir:            ".cache/sportfun",
			SnapshotTTL:    duration{120 * time.Second},
			LastGoodMaxAge: duration{24 * time.Hour},
			UniverseTTL:    duration{6 * time.Hour},
			BlockTargetTTL: duration{60 * time.Second},
		},
		Snapshot: SnapshotConfig{
			WindowHours:     24,
			TrendDays:       7,
			MaxTokens:       0,
			MetadataLimit:   250,
			RefreshInterval: duration{2 * time.Minute},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "sportfun",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sportfun-snapshots",
			Prefix:         "last-good",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"snapshot_stale", "snapshot_empty"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"refresh": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// SportTags returns the configured sports in a stable order.
func (c *Config) SportTags() []domain.Sport {
	out := make([]domain.Sport, 0, len(c.Sports))
	for tag := range c.Sports {
		if s, err := domain.ParseSport(tag); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sport returns the contract set for sport.
func (c *Config) Sport(s domain.Sport) (SportConfig, bool) {
	for tag, sc := range c.Sports {
		if p, err := domain.ParseSport(tag); err == nil && p == s {
			return sc, true
		}
	}
	return SportConfig{}, false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, refresh, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// RPC
	if c.RPC.URL == "" {
		errs = append(errs, "rpc: url must not be empty")
	}
	if c.RPC.MaxAttempts < 1 {
		errs = append(errs, "rpc: max_attempts must be >= 1")
	}
	if c.RPC.BaseBackoff.Duration <= 0 || c.RPC.MaxBackoff.Duration < c.RPC.BaseBackoff.Duration {
		errs = append(errs, "rpc: base_backoff must be > 0 and <= max_backoff")
	}

	// Sports
	if len(c.Sports) == 0 {
		errs = append(errs, "sports: at least one sport must be configured")
	}
	for tag, sc := range c.Sports {
		if _, err := domain.ParseSport(tag); err != nil {
			errs = append(errs, fmt.Sprintf("sports.%s: %v", tag, err))
			continue
		}
		for name, addr := range map[string]string{
			"trade_contract":        sc.TradeContract,
			"player_token_contract": sc.PlayerTokenContract,
			"market_contract":       sc.MarketContract,
		} {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Sprintf("sports.%s: %s %q is not a hex address", tag, name, addr))
			}
		}
		if sc.PromotionContract != "" && !common.IsHexAddress(sc.PromotionContract) {
			errs = append(errs, fmt.Sprintf("sports.%s: promotion_contract %q is not a hex address", tag, sc.PromotionContract))
		}
		if sc.LookbackDays < 1 {
			errs = append(errs, fmt.Sprintf("sports.%s: lookback_days must be >= 1", tag))
		}
		if sc.FallbackFeed && c.FallbackFeed.URL == "" {
			errs = append(errs, fmt.Sprintf("sports.%s: fallback_feed enabled but fallback_feed.url is empty", tag))
		}
	}

	// Metadata
	if c.Metadata.Concurrency < 1 {
		errs = append(errs, "metadata: concurrency must be >= 1")
	}
	if c.Metadata.FetchTimeout.Duration <= 0 {
		errs = append(errs, "metadata: fetch_timeout must be > 0")
	}
	switch c.Metadata.Store {
	case "file":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "metadata: store = \"redis\" requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("metadata: unknown store %q (valid: file, redis)", c.Metadata.Store))
	}

	for i, o := range c.Overrides {
		if !common.IsHexAddress(o.Contract) || o.TokenID == "" || o.Name == "" {
			errs = append(errs, fmt.Sprintf("overrides[%d]: contract, token_id and name are required", i))
		}
	}

	// Cache
	if c.Cache.Dir == "" {
		errs = append(errs, "cache: dir must not be empty")
	}
	if c.Cache.SnapshotTTL.Duration <= 0 {
		errs = append(errs, "cache: snapshot_ttl must be > 0")
	}
	if c.Cache.LastGoodMaxAge.Duration <= 0 {
		errs = append(errs, "cache: last_good_max_age must be > 0")
	}

	// Snapshot
	if c.Snapshot.WindowHours < 1 {
		errs = append(errs, "snapshot: window_hours must be >= 1")
	}
	if c.Snapshot.TrendDays < 1 {
		errs = append(errs, "snapshot: trend_days must be >= 1")
	}
	if c.Snapshot.MaxTokens < 0 || c.Snapshot.MetadataLimit < 0 {
		errs = append(errs, "snapshot: max_tokens and metadata_limit must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Full mode requires every optional backend.
	if strings.ToLower(c.Mode) == "full" && !(c.Redis.Enabled && c.Postgres.Enabled && c.S3.Enabled) {
		errs = append(errs, "mode full requires redis, postgres and s3 to be enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
