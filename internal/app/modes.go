package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/buzzpool/internal/server"
	"github.com/alanyoungcy/buzzpool/internal/server/handler"
	"github.com/alanyoungcy/buzzpool/internal/server/ws"
)

// ServerMode serves the HTTP API, the websocket hub when a bus is wired,
// and refreshes the state periodically.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, deps.Service.Snapshot, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
	} else {
		a.logger.InfoContext(ctx, "app: redis disabled, websocket endpoint off")
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, a.handlers(deps), hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return a.refreshLoop(ctx, deps) })

	return g.Wait()
}

func (a *App) handlers(deps *Dependencies) server.Handlers {
	h := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		State:   handler.NewStateHandler(deps.Service, deps.Toaster, a.logger),
		Actions: handler.NewActionHandler(deps.Service, a.logger),
		UI:      handler.NewUIHandler(deps.Service, a.logger),
	}
	if deps.AuditStore != nil || deps.PoolStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, deps.PoolStore, a.cfg.Chain.ChainID, a.logger)
	}
	return h
}

// WatchMode keeps the state, cache, mirror and archive fresh without
// serving HTTP.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Duration("interval", a.cfg.Market.RefreshInterval.Duration),
	)
	return a.refreshLoop(ctx, deps)
}

// RefreshMode refreshes once, logs a summary and returns.
func (a *App) RefreshMode(ctx context.Context, deps *Dependencies) error {
	err := deps.Service.RefreshAll(ctx)
	a.logSummary(ctx, deps)
	if err != nil {
		return fmt.Errorf("app: refresh: %w", err)
	}
	return nil
}

// refreshLoop refreshes immediately and then every RefreshInterval.
// Failures are logged and retried on the next tick. It returns nil when ctx
// is cancelled.
func (a *App) refreshLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Market.RefreshInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := deps.Service.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			a.logger.WarnContext(ctx, "app: refresh failed", slog.String("error", err.Error()))
		} else if err == nil {
			a.logSummary(ctx, deps)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) logSummary(ctx context.Context, deps *Dependencies) {
	snap := deps.Service.Snapshot()
	open := 0
	for _, p := range snap.Pools {
		if !p.Ended {
			open++
		}
	}
	a.logger.InfoContext(ctx, "app: state refreshed",
		slog.String("account", snap.Account),
		slog.String("buzz", snap.Balance.Buzz.String()),
		slog.String("usde", snap.Balance.USDe.String()),
		slog.Int("pools", len(snap.Pools)),
		slog.Int("open_pools", open),
		slog.Int("user_bets", len(snap.UserBets)),
		slog.Bool("nft_minted", snap.NFTMinted),
	)
}
