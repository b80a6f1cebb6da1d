package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/handler"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/middleware"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// WriteRateRPS and WriteRateBurst bound POST requests per client IP.
	// Zero disables the limit.
	WriteRateRPS   int
	WriteRateBurst int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Session    *handler.SessionHandler
	Market     *handler.MarketHandler
	Operations *handler.OperationHandler
	Content    *handler.ContentHandler
	Metrics    http.Handler
}

// Server is the HTTP + WebSocket API over the wallet session and the
// marketplace.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter and wsHub
// may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	limit, window := writeLimit(cfg)
	write := func(fn http.HandlerFunc) http.Handler {
		return middleware.RateLimit(limiter, limit, window, logger)(fn)
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Session.
	mux.HandleFunc("GET /api/session", handlers.Session.GetSession)
	mux.Handle("POST /api/session/connect", write(handlers.Session.Connect))
	mux.Handle("POST /api/session/disconnect", write(handlers.Session.Disconnect))
	mux.Handle("POST /api/session/network", write(handlers.Session.SwitchNetwork))
	mux.HandleFunc("GET /api/networks", handlers.Session.ListNetworks)

	// Reads.
	mux.HandleFunc("GET /api/items", handlers.Market.ListItems)
	mux.HandleFunc("GET /api/items/{id}", handlers.Market.GetItem)
	mux.HandleFunc("GET /api/me/items", handlers.Market.ListMyItems)
	mux.HandleFunc("GET /api/me/listings", handlers.Market.ListMyListings)
	mux.HandleFunc("GET /api/fees", handlers.Market.GetFees)
	mux.HandleFunc("GET /api/auctions", handlers.Market.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Market.GetAuction)

	// Writes.
	mux.Handle("POST /api/items/mint", write(handlers.Operations.Mint))
	mux.Handle("POST /api/items/{id}/list", write(handlers.Operations.List))
	mux.Handle("POST /api/items/{id}/cancel", write(handlers.Operations.CancelListing))
	mux.Handle("POST /api/items/{id}/buy", write(handlers.Operations.Buy))
	mux.Handle("POST /api/items/{id}/transfer", write(handlers.Operations.Transfer))
	mux.Handle("POST /api/auctions", write(handlers.Operations.CreateAuction))
	mux.Handle("POST /api/auctions/{id}/bid", write(handlers.Operations.PlaceBid))
	mux.Handle("POST /api/auctions/{id}/end", write(handlers.Operations.EndAuction))
	mux.HandleFunc("GET /api/operations", handlers.Operations.ListOperations)
	mux.HandleFunc("GET /api/operations/pending", handlers.Operations.ListPending)

	// Content.
	mux.HandleFunc("GET /api/content/status", handlers.Content.Status)
	mux.Handle("POST /api/content/file", write(handlers.Content.PinFile))
	mux.Handle("POST /api/content/metadata", write(handlers.Content.PinMetadata))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// writeLimit turns a steady rate plus burst into a sliding-window budget of
// burst requests per burst/rps seconds.
func writeLimit(cfg Config) (int, time.Duration) {
	if cfg.WriteRateRPS <= 0 {
		return 0, 0
	}
	burst := cfg.WriteRateBurst
	if burst < cfg.WriteRateRPS {
		burst = cfg.WriteRateRPS
	}
	return burst, time.Duration(burst) * time.Second / time.Duration(cfg.WriteRateRPS)
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
