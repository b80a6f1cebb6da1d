package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/monitor"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/handler"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and WebSocket API over the wallet session and
// the marketplace.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs the auction watcher. The HTTP server is started as well
// when server.enabled is set, so the metrics endpoint stays reachable.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMonitor(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// FullMode starts the auction watcher and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMonitor(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startMonitor adds the auction watcher to g.
func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	w := monitor.New(deps.Market, monitor.Config{
		Interval:      a.cfg.Monitor.Interval.Duration,
		AutoEnd:       a.cfg.Monitor.AutoEnd,
		SnapshotEvery: a.cfg.Monitor.SnapshotEvery,
	}, a.logger)
	if a.cfg.Monitor.AutoEnd {
		w.SetEnder(deps.Executor)
	}
	if deps.Archiver != nil {
		w.SetArchiver(deps.Archiver)
	}
	w.SetNotifier(deps.Notifier)
	w.SetEventBus(deps.EventBus)
	w.SetMetrics(deps.Metrics)

	g.Go(func() error {
		return w.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and the WebSocket hub to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	increment := BidIncrement(a.cfg)
	cacheTTL := a.cfg.Marketplace.ReadCacheTTL.Duration

	market := handler.NewMarketHandler(deps.Market, deps.Wallet, increment, a.logger)
	market.SetCache(deps.ReadCache, cacheTTL)
	market.SetMetadata(deps.Metadata)

	ops := handler.NewOperationHandler(deps.Executor, deps.Market, deps.Wallet, a.logger)
	ops.SetCache(deps.ReadCache)
	if deps.ContentStore != nil {
		ops.SetContentStore(deps.ContentStore)
	}
	if deps.OperationStore != nil {
		ops.SetJournal(deps.OperationStore)
	}

	mode := strings.ToLower(a.cfg.Mode)
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(mode, deps.Contract.Hex(), deps.Wallet, a.logger),
		Session:    handler.NewSessionHandler(deps.Wallet, a.logger),
		Market:     market,
		Operations: ops,
		Content:    handler.NewContentHandler(deps.ContentStore, a.logger),
		Metrics:    deps.Metrics.Handler(),
	}

	hub := ws.NewHub(deps.EventBus, deps.Wallet, a.logger, ws.Config{
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		WriteRateRPS:   a.cfg.Server.WriteRateRPS,
		WriteRateBurst: a.cfg.Server.WriteRateBurst,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down", slog.Int("port", a.cfg.Server.Port))
		return srv.Shutdown(shutCtx)
	})
}
