package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPORTFUN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPORTFUN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). RPC URLs usually embed a provider key, so they are expected to come
// from the environment rather than the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── RPC ──
	setStr(&cfg.RPC.URL, "SPORTFUN_RPC_URL")
	setInt(&cfg.RPC.MaxAttempts, "SPORTFUN_RPC_MAX_ATTEMPTS")
	setDuration(&cfg.RPC.BaseBackoff, "SPORTFUN_RPC_BASE_BACKOFF")
	setDuration(&cfg.RPC.MaxBackoff, "SPORTFUN_RPC_MAX_BACKOFF")
	setBool(&cfg.RPC.AssetTransfers, "SPORTFUN_RPC_ASSET_TRANSFERS")

	// ── Sports ──
	for tag, sc := range cfg.Sports {
		prefix := "SPORTFUN_SPORTS_" + strings.ToUpper(tag) + "_"
		setStr(&sc.TradeContract, prefix+"TRADE_CONTRACT")
		setStr(&sc.PromotionContract, prefix+"PROMOTION_CONTRACT")
		setStr(&sc.PlayerTokenContract, prefix+"PLAYER_TOKEN_CONTRACT")
		setStr(&sc.MarketContract, prefix+"MARKET_CONTRACT")
		setInt(&sc.LookbackDays, prefix+"LOOKBACK_DAYS")
		setBool(&sc.FallbackFeed, prefix+"FALLBACK_FEED")
		cfg.Sports[tag] = sc
	}

	// ── Metadata ──
	setStr(&cfg.Metadata.URITemplate, "SPORTFUN_METADATA_URI_TEMPLATE")
	setStr(&cfg.Metadata.IPFSGateway, "SPORTFUN_METADATA_IPFS_GATEWAY")
	setStr(&cfg.Metadata.ArweaveGateway, "SPORTFUN_METADATA_ARWEAVE_GATEWAY")
	setDuration(&cfg.Metadata.FetchTimeout, "SPORTFUN_METADATA_FETCH_TIMEOUT")
	setDuration(&cfg.Metadata.TTL, "SPORTFUN_METADATA_TTL")
	setInt(&cfg.Metadata.Concurrency, "SPORTFUN_METADATA_CONCURRENCY")
	setStr(&cfg.Metadata.Store, "SPORTFUN_METADATA_STORE")

	// ── Fallback feed ──
	setStr(&cfg.FallbackFeed.URL, "SPORTFUN_FALLBACK_FEED_URL")
	setDuration(&cfg.FallbackFeed.Timeout, "SPORTFUN_FALLBACK_FEED_TIMEOUT")

	// ── Cache ──
	setStr(&cfg.Cache.Dir, "SPORTFUN_CACHE_DIR")
	setDuration(&cfg.Cache.SnapshotTTL, "SPORTFUN_CACHE_SNAPSHOT_TTL")
	setDuration(&cfg.Cache.LastGoodMaxAge, "SPORTFUN_CACHE_LAST_GOOD_MAX_AGE")
	setDuration(&cfg.Cache.UniverseTTL, "SPORTFUN_CACHE_UNIVERSE_TTL")
	setDuration(&cfg.Cache.BlockTargetTTL, "SPORTFUN_CACHE_BLOCK_TARGET_TTL")

	// ── Snapshot ──
	setInt(&cfg.Snapshot.WindowHours, "SPORTFUN_SNAPSHOT_WINDOW_HOURS")
	setInt(&cfg.Snapshot.TrendDays, "SPORTFUN_SNAPSHOT_TREND_DAYS")
	setInt(&cfg.Snapshot.MaxTokens, "SPORTFUN_SNAPSHOT_MAX_TOKENS")
	setInt(&cfg.Snapshot.MetadataLimit, "SPORTFUN_SNAPSHOT_METADATA_LIMIT")
	setDuration(&cfg.Snapshot.RefreshInterval, "SPORTFUN_SNAPSHOT_REFRESH_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SPORTFUN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SPORTFUN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPORTFUN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPORTFUN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPORTFUN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPORTFUN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SPORTFUN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SPORTFUN_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SPORTFUN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SPORTFUN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SPORTFUN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPORTFUN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPORTFUN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPORTFUN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPORTFUN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPORTFUN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SPORTFUN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SPORTFUN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SPORTFUN_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SPORTFUN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SPORTFUN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPORTFUN_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPORTFUN_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SPORTFUN_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SPORTFUN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPORTFUN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPORTFUN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPORTFUN_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPORTFUN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SPORTFUN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SPORTFUN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SPORTFUN_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPORTFUN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPORTFUN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPORTFUN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SPORTFUN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SPORTFUN_MODE")
	setStr(&cfg.LogLevel, "SPORTFUN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
