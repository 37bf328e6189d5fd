package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/nftstore/internal/crypto"
	"github.com/alanyoungcy/nftstore/internal/server"
	"github.com/alanyoungcy/nftstore/internal/server/handler"
	"github.com/alanyoungcy/nftstore/internal/server/ws"
)

// ServerMode serves the HTTP API, plus the WebSocket hub when a signal bus is
// wired.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the server together with the periodic archiver and, when an
// interval is configured, the block producer.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)

	if interval := a.cfg.Chain.ProduceInterval.Duration; interval > 0 {
		g.Go(func() error {
			return deps.World.Chain.Produce(ctx, interval)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	} else {
		a.logger.InfoContext(ctx, "archiver disabled (needs postgres and s3)")
	}

	return g.Wait()
}

// ArchiveMode exports every event older than the retention window once and
// reports what the archive holds for the current month.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive mode needs postgres and s3")
	}
	n, err := a.archiveOnce(ctx, deps)
	if err != nil {
		return err
	}

	prefix := "archive/events/" + time.Now().UTC().Format("2006-01") + "/"
	objects, err := deps.BlobReader.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("app: list archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("archived", n),
		slog.String("prefix", prefix),
		slog.Int("objects", len(objects)),
	)
	return nil
}

// EncryptKeyMode seals the configured admin private key into
// admin.encrypted_key_path.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	data, err := crypto.EncryptKey(a.cfg.Admin.PrivateKey, a.cfg.Admin.KeyPassword)
	if err != nil {
		return fmt.Errorf("app: encrypt key: %w", err)
	}
	if err := os.WriteFile(a.cfg.Admin.EncryptedKeyPath, data, 0o600); err != nil {
		return fmt.Errorf("app: write key file: %w", err)
	}
	a.logger.InfoContext(ctx, "encrypted key written", slog.String("path", a.cfg.Admin.EncryptedKeyPath))
	return nil
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) (int64, error) {
	before := time.Now().UTC().Add(-a.cfg.Archive.Retention.Duration)
	n, err := deps.Archiver.ArchiveEvents(ctx, before)
	if err != nil {
		return n, fmt.Errorf("app: archive events: %w", err)
	}
	return n, nil
}

// runArchiveLoop archives on every tick until ctx is cancelled. Failed runs
// are logged and retried on the next tick.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", a.cfg.Archive.Retention.Duration),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.archiveOnce(ctx, deps)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", n))
		}
	}
}

// startHTTPServer adds the HTTP server, and the WebSocket hub when a signal
// bus is wired, to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
			Status:    func() any { return deps.Ledger.Chain() },
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		RateLimiter:  deps.RateLimiter,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Store:  handler.NewStoreHandler(deps.Store, a.logger),
		Ledger: handler.NewLedgerHandler(deps.Ledger, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
