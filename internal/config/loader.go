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
// built-in defaults, applies NFTSTORE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from NFTSTORE_* environment
// variables that are set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setUint64(&cfg.Chain.ChainID, "NFTSTORE_CHAIN_ID")
	setBool(&cfg.Chain.AutoMine, "NFTSTORE_CHAIN_AUTOMINE")
	setDuration(&cfg.Chain.BlockGap, "NFTSTORE_CHAIN_BLOCK_GAP")
	setDuration(&cfg.Chain.ProduceInterval, "NFTSTORE_CHAIN_PRODUCE_INTERVAL")
	setBool(&cfg.Chain.Devnet, "NFTSTORE_CHAIN_DEVNET")

	// ── Store ──
	setStr(&cfg.Store.Address, "NFTSTORE_STORE_ADDRESS")
	setStr(&cfg.Store.Currency, "NFTSTORE_STORE_CURRENCY")
	setStr(&cfg.Store.CurrencySymbol, "NFTSTORE_STORE_CURRENCY_SYMBOL")
	setStr(&cfg.Store.Staker, "NFTSTORE_STORE_STAKER")
	setUint64(&cfg.Store.RewardBps, "NFTSTORE_STORE_REWARD_BPS")
	setStr(&cfg.Store.OwnerVault, "NFTSTORE_STORE_OWNER_VAULT")
	setStr(&cfg.Store.OwnerBeneficiary, "NFTSTORE_STORE_OWNER_BENEFICIARY")
	setStr(&cfg.Store.StakingVault, "NFTSTORE_STORE_STAKING_VAULT")
	setStr(&cfg.Store.StakingBeneficiary, "NFTSTORE_STORE_STAKING_BENEFICIARY")

	// ── Admin ──
	setStr(&cfg.Admin.Address, "NFTSTORE_ADMIN_ADDRESS")
	setStr(&cfg.Admin.PrivateKey, "NFTSTORE_ADMIN_PRIVATE_KEY")
	setStr(&cfg.Admin.EncryptedKeyPath, "NFTSTORE_ADMIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Admin.KeyPassword, "NFTSTORE_ADMIN_KEY_PASSWORD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "NFTSTORE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "NFTSTORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "NFTSTORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NFTSTORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NFTSTORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NFTSTORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NFTSTORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NFTSTORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NFTSTORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NFTSTORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NFTSTORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NFTSTORE_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "NFTSTORE_REDIS_URL")
	setStr(&cfg.Redis.Addr, "NFTSTORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NFTSTORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NFTSTORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NFTSTORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NFTSTORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NFTSTORE_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "NFTSTORE_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "NFTSTORE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NFTSTORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NFTSTORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "NFTSTORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NFTSTORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NFTSTORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NFTSTORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NFTSTORE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setDuration(&cfg.Archive.Retention, "NFTSTORE_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "NFTSTORE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "NFTSTORE_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setInt(&cfg.Server.Port, "NFTSTORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NFTSTORE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NFTSTORE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "NFTSTORE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "NFTSTORE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NFTSTORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NFTSTORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NFTSTORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NFTSTORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "NFTSTORE_MODE")
	setStr(&cfg.LogLevel, "NFTSTORE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
