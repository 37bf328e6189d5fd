// Package server exposes the store over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/server/handler"
	"github.com/alanyoungcy/nftstore/internal/server/middleware"
	"github.com/alanyoungcy/nftstore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // if empty, authentication is disabled
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimiter, when set, limits each client IP to RateLimit requests per
	// RateWindow.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Store  *handler.StoreHandler
	Ledger *handler.LedgerHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes and middleware registered.
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, logger),
		ReadTimeout:  orDefault(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", handlers.Health.HealthCheck)

	// Lots.
	st := handlers.Store
	mux.HandleFunc("GET /v1/lots/{collection}/{id}", st.GetLot)
	mux.HandleFunc("GET /v1/lots/{collection}/{id}/events", st.ListLotEvents)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/sale", st.Sell)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/sale/cancel", st.CancelSale)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/buy", st.Buy)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/offers", st.MakeOffer)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/offers/{offer}/cancel", st.CancelOffer)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/offers/{offer}/accept", st.AcceptOffer)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/auction", st.StartAuction)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/auction/bid", st.Bid)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/auction/cancel", st.CancelAuction)
	mux.HandleFunc("POST /v1/lots/{collection}/{id}/auction/claim", st.Claim)

	// Fees, vaults and the event log.
	mux.HandleFunc("GET /v1/fees/{collection}", st.GetFees)
	mux.HandleFunc("PUT /v1/fees/{collection}", st.SetFees)
	mux.HandleFunc("POST /v1/vaults/{name}/claim", st.ClaimVault)
	mux.HandleFunc("GET /v1/events", st.ListRecentEvents)

	// Ledgers.
	lg := handlers.Ledger
	mux.HandleFunc("GET /v1/chain", lg.GetChain)
	mux.HandleFunc("GET /v1/accounts/{address}", lg.GetAccount)
	mux.HandleFunc("GET /v1/assets/{collection}/{id}", lg.GetAsset)
	mux.HandleFunc("GET /v1/domains/assets/{collection}", lg.GetAssetDomain)
	mux.HandleFunc("GET /v1/domains/currency", lg.GetCurrencyDomain)
	mux.HandleFunc("POST /v1/currency/permit", lg.PermitCurrency)

	// Devnet helpers; the service refuses them outside devnet.
	mux.HandleFunc("POST /v1/dev/currency/mint", lg.MintCurrency)
	mux.HandleFunc("POST /v1/dev/assets/mint", lg.MintAsset)
	mux.HandleFunc("POST /v1/dev/assets/approve", lg.ApproveStore)
	mux.HandleFunc("POST /v1/dev/mine", lg.Mine)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
