// Package app wires the chain client, the optional backing services and the
// market service together and runs them in the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/buzzpool/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, seeds the state from cache and runs the mode
// until ctx is cancelled or, in refresh mode, until the refresh is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.RunWith(ctx, deps)
}

// RunWith runs the configured mode on already wired dependencies.
func (a *App) RunWith(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: wired",
		slog.String("account", deps.Chain.Account().Hex()),
		slog.Int64("chain_id", a.cfg.Chain.ChainID),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("postgres", deps.AuditStore != nil),
		slog.Bool("s3", deps.Archiver != nil),
	)

	if err := deps.Service.Seed(ctx); err != nil {
		a.logger.WarnContext(ctx, "app: seed from cache failed", slog.String("error", err.Error()))
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	case "refresh":
		return a.RefreshMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
