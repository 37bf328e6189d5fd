// Package config defines the top-level configuration for the nftstore engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NFTSTORE_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Store    StoreConfig    `toml:"store"`
	Admin    AdminConfig    `toml:"admin"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig controls the in-process execution runtime.
type ChainConfig struct {
	ChainID  uint64   `toml:"chain_id"`
	AutoMine bool     `toml:"automine"`
	BlockGap duration `toml:"block_gap"`
	// ProduceInterval mines an empty block on this interval in full mode.
	// Zero disables the producer.
	ProduceInterval duration `toml:"produce_interval"`
	// Devnet unlocks mint, approve and mine endpoints.
	Devnet bool `toml:"devnet"`
}

// CollectionConfig describes one asset contract.
type CollectionConfig struct {
	Address string `toml:"address"`
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// StoreConfig holds the contract addresses and parameters of the store and its
// collaborators.
type StoreConfig struct {
	Address            string             `toml:"address"`
	Currency           string             `toml:"currency"`
	CurrencySymbol     string             `toml:"currency_symbol"`
	CurrencyName       string             `toml:"currency_name"`
	CurrencyVersion    string             `toml:"currency_version"`
	Staker             string             `toml:"staker"`
	RewardBps          uint64             `toml:"reward_bps"`
	OwnerVault         string             `toml:"owner_vault"`
	OwnerBeneficiary   string             `toml:"owner_beneficiary"`
	StakingVault       string             `toml:"staking_vault"`
	StakingBeneficiary string             `toml:"staking_beneficiary"`
	Collections        []CollectionConfig `toml:"collections"`
}

// AdminConfig identifies the store administrator. Address wins; otherwise it is
// derived from the configured key.
type AdminConfig struct {
	Address          string `toml:"address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	URL          string `toml:"url"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls export of old events to object storage.
type ArchiveConfig struct {
	Retention duration `toml:"retention"`
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints. Empty disables the check.
	APIKey string `toml:"api_key"`
	// RateLimit is the number of requests a caller may make per RateWindow.
	// Zero disables per-caller limiting.
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config for a single-process devnet. These match the
// values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:         1337,
			AutoMine:        true,
			BlockGap:        duration{12 * time.Second},
			ProduceInterval: duration{0},
			Devnet:          true,
		},
		Store: StoreConfig{
			Address:         "0x0000000000000000000000000000000000005701",
			Currency:        "0x0000000000000000000000000000000000005702",
			CurrencySymbol:  "MIX",
			CurrencyName:    "Mix Token",
			CurrencyVersion: "1",
			Staker:          "0x0000000000000000000000000000000000005703",
			RewardBps:       0,
			OwnerVault:      "0x0000000000000000000000000000000000005704",
			StakingVault:    "0x0000000000000000000000000000000000005705",
			Collections: []CollectionConfig{
				{Address: "0x0000000000000000000000000000000000005710", Name: "Dev Collection", Version: "1"},
			},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "nftstore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftstore-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Retention: duration{30 * 24 * time.Hour},
			Interval:  duration{24 * time.Hour},
			BatchSize: 5_000,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    0,
			RateWindow:   duration{time.Minute},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{15 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"Buy", "AcceptOffer", "Claim"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":      true,
	"full":        true,
	"archive":     true,
	"encrypt-key": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	"Sell": true, "Buy": true, "CancelSale": true,
	"Offer": true, "AcceptOffer": true, "CancelOffer": true,
	"Auction": true, "Bid": true, "Claim": true, "CancelAuction": true,
	"SetFees": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, full, archive, encrypt-key)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// encrypt-key only needs a raw key and a password.
	if mode == "encrypt-key" {
		if c.Admin.PrivateKey == "" {
			errs = append(errs, "admin: private_key is required for mode encrypt-key")
		}
		if c.Admin.KeyPassword == "" {
			errs = append(errs, "admin: key_password is required for mode encrypt-key")
		}
		return joinErrs(errs)
	}

	// Chain
	if c.Chain.ChainID == 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.BlockGap.Duration <= 0 {
		errs = append(errs, "chain: block_gap must be > 0")
	}
	if c.Chain.ProduceInterval.Duration < 0 {
		errs = append(errs, "chain: produce_interval must be >= 0")
	}

	// Store addresses
	requireAddr := func(field, v string) {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("store: %s must be a hex address, got %q", field, v))
		}
	}
	optionalAddr := func(section, field, v string) {
		if v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("%s: %s must be a hex address, got %q", section, field, v))
		}
	}
	requireAddr("address", c.Store.Address)
	requireAddr("currency", c.Store.Currency)
	requireAddr("staker", c.Store.Staker)
	requireAddr("owner_vault", c.Store.OwnerVault)
	requireAddr("staking_vault", c.Store.StakingVault)
	optionalAddr("store", "owner_beneficiary", c.Store.OwnerBeneficiary)
	optionalAddr("store", "staking_beneficiary", c.Store.StakingBeneficiary)
	if c.Store.CurrencySymbol == "" {
		errs = append(errs, "store: currency_symbol must not be empty")
	}
	if len(c.Store.Collections) == 0 {
		errs = append(errs, "store: at least one collection is required")
	}
	seen := map[string]bool{}
	for i, col := range c.Store.Collections {
		if !common.IsHexAddress(col.Address) {
			errs = append(errs, fmt.Sprintf("store: collections[%d].address must be a hex address, got %q", i, col.Address))
			continue
		}
		key := strings.ToLower(col.Address)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("store: collections[%d] duplicates address %s", i, col.Address))
		}
		seen[key] = true
	}

	// Admin: an address, a key, or a devnet (which generates one).
	optionalAddr("admin", "address", c.Admin.Address)
	if c.Admin.EncryptedKeyPath != "" && c.Admin.KeyPassword == "" {
		errs = append(errs, "admin: key_password is required when encrypted_key_path is set")
	}
	if !c.Chain.Devnet && c.Admin.Address == "" && c.Admin.PrivateKey == "" && c.Admin.EncryptedKeyPath == "" {
		errs = append(errs, "admin: one of address, private_key or encrypted_key_path must be set outside devnet")
	}

	// Postgres
	pgRequired := mode == "archive"
	if pgRequired && !c.Postgres.Enabled {
		errs = append(errs, "postgres: must be enabled for mode "+mode)
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			errs = append(errs, "redis: url or addr must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Server.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: rate_limit requires redis to be enabled")
	}

	// S3
	if mode == "archive" && !c.S3.Enabled {
		errs = append(errs, "s3: must be enabled for mode archive")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres to be enabled")
		}
	}

	// Archive
	if c.S3.Enabled {
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
		if mode == "full" && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event kind %q", e))
		}
	}

	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
