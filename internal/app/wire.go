package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/nftstore/internal/blob/s3"
	"github.com/alanyoungcy/nftstore/internal/cache/redis"
	"github.com/alanyoungcy/nftstore/internal/config"
	"github.com/alanyoungcy/nftstore/internal/crypto"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/notify"
	"github.com/alanyoungcy/nftstore/internal/server/handler"
	"github.com/alanyoungcy/nftstore/internal/service"
	"github.com/alanyoungcy/nftstore/internal/store/postgres"
	"github.com/alanyoungcy/nftstore/internal/world"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	World  *world.World
	Store  *service.StoreService
	Ledger *service.LedgerService

	// Stores
	EventStore domain.EventStore
	AuditStore domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probe every connected backend.
	HealthChecks map[string]handler.HealthCheck
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

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- World ---
	admin, err := resolveAdmin(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: admin: %w", err)
	}
	w, err := world.New(worldConfig(cfg, admin), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: world: %w", err)
	}
	deps.World = w

	// --- PostgreSQL ---
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

		pool := pgClient.Pool()
		deps.EventStore = postgres.NewEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health

		// The archiver drains the event log, so it only exists with Postgres.
		if deps.EventStore != nil {
			archiver := s3blob.NewArchiver(deps.BlobWriter, deps.EventStore, logger).
				WithReader(deps.BlobReader).
				WithBatchSize(cfg.Archive.BatchSize)
			if deps.AuditStore != nil {
				archiver = archiver.WithAudit(deps.AuditStore)
			}
			if deps.LockManager != nil {
				archiver = archiver.WithLock(deps.LockManager)
			}
			deps.Archiver = archiver
		}
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
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Services ---
	store := service.NewStoreService(w, logger)
	if deps.SignalBus != nil {
		store = store.WithBus(deps.SignalBus)
	}
	if deps.EventStore != nil {
		store = store.WithEventStore(deps.EventStore)
	}
	if deps.AuditStore != nil {
		store = store.WithAudit(deps.AuditStore)
	}
	if deps.Notifier != nil {
		store = store.WithNotifier(deps.Notifier)
	}
	if deps.RateLimiter != nil && cfg.Server.RateLimit > 0 {
		store = store.WithRateLimit(deps.RateLimiter, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
	}
	deps.Store = store
	deps.Ledger = service.NewLedgerService(w, cfg.Chain.Devnet, logger)

	return deps, cleanup, nil
}

// resolveAdmin picks the store administrator: an explicit address, else the
// address of the configured key, else (devnet only) a fresh key.
func resolveAdmin(cfg *config.Config, logger *slog.Logger) (common.Address, error) {
	if cfg.Admin.Address != "" {
		return common.HexToAddress(cfg.Admin.Address), nil
	}
	if cfg.Admin.PrivateKey != "" || cfg.Admin.EncryptedKeyPath != "" {
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Admin.PrivateKey,
			EncryptedKeyPath: cfg.Admin.EncryptedKeyPath,
			KeyPassword:      cfg.Admin.KeyPassword,
		})
		if err != nil {
			return common.Address{}, err
		}
		return signer.Address(), nil
	}
	if !cfg.Chain.Devnet {
		return common.Address{}, fmt.Errorf("no admin address or key configured")
	}
	signer, err := crypto.GenerateSigner()
	if err != nil {
		return common.Address{}, err
	}
	logger.Warn("no admin configured, generated a devnet admin key",
		slog.String("admin", signer.Address().Hex()),
	)
	return signer.Address(), nil
}

// worldConfig maps the validated configuration onto the world layout. Unset
// vault beneficiaries default to the admin.
func worldConfig(cfg *config.Config, admin common.Address) world.Config {
	orAdmin := func(s string) common.Address {
		if s == "" {
			return admin
		}
		return common.HexToAddress(s)
	}

	collections := make([]world.Collection, 0, len(cfg.Store.Collections))
	for _, c := range cfg.Store.Collections {
		collections = append(collections, world.Collection{
			Address: common.HexToAddress(c.Address),
			Name:    c.Name,
			Version: c.Version,
		})
	}

	return world.Config{
		ChainID:            cfg.Chain.ChainID,
		AutoMine:           cfg.Chain.AutoMine,
		BlockGap:           cfg.Chain.BlockGap.Duration,
		Store:              common.HexToAddress(cfg.Store.Address),
		Admin:              admin,
		Currency:           common.HexToAddress(cfg.Store.Currency),
		CurrencySymbol:     cfg.Store.CurrencySymbol,
		CurrencyName:       cfg.Store.CurrencyName,
		CurrencyVersion:    cfg.Store.CurrencyVersion,
		Staker:             common.HexToAddress(cfg.Store.Staker),
		RewardBps:          cfg.Store.RewardBps,
		OwnerVault:         common.HexToAddress(cfg.Store.OwnerVault),
		OwnerBeneficiary:   orAdmin(cfg.Store.OwnerBeneficiary),
		StakingVault:       common.HexToAddress(cfg.Store.StakingVault),
		StakingBeneficiary: orAdmin(cfg.Store.StakingBeneficiary),
		Collections:        collections,
	}
}
