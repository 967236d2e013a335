// Package server exposes the market state and actions over HTTP and streams
// updates over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/buzzpool/internal/domain"
	"github.com/alanyoungcy/buzzpool/internal/server/handler"
	"github.com/alanyoungcy/buzzpool/internal/server/middleware"
	"github.com/alanyoungcy/buzzpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when non-empty.
	APIKey string
	// RateLimit enables per-IP limiting when positive and a limiter is given.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Audit may be
// nil.
type Handlers struct {
	Health  *handler.HealthHandler
	State   *handler.StateHandler
	Actions *handler.ActionHandler
	UI      *handler.UIHandler
	Audit   *handler.AuditHandler
}

const shutdownTimeout = 15 * time.Second

// Server is the HTTP + websocket API.
type Server struct {
	httpServer      *http.Server
	actions         *handler.ActionHandler
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain CORS, logging, auth, rate limit. hub and limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           Routes(cfg, h, hub, limiter, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// actions block until their transactions are mined
			WriteTimeout: 6 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		actions:         h.Actions,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Routes builds the full handler. It is exported for tests.
func Routes(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/state", h.State.GetState)
	mux.HandleFunc("GET /api/pools", h.State.ListPools)
	mux.HandleFunc("GET /api/pools/{id}", h.State.GetPool)
	mux.HandleFunc("GET /api/bets/me", h.State.MyBets)
	mux.HandleFunc("GET /api/balance", h.State.Balance)
	mux.HandleFunc("GET /api/toasts", h.State.Toasts)
	mux.HandleFunc("POST /api/refresh", h.State.Refresh)

	mux.HandleFunc("POST /api/pools", h.Actions.CreatePool)
	mux.HandleFunc("POST /api/pools/{id}/bets", h.Actions.PlaceBet)
	mux.HandleFunc("POST /api/pools/{id}/claim", h.Actions.ClaimBet)
	mux.HandleFunc("POST /api/pools/{id}/result", h.Actions.SetResult)
	mux.HandleFunc("POST /api/nft/mint", h.Actions.MintNFT)
	mux.HandleFunc("POST /api/convert/usde-to-buzz", h.Actions.USDeToBuzz)
	mux.HandleFunc("POST /api/convert/buzz-to-usde", h.Actions.BuzzToUSDe)

	mux.HandleFunc("POST /api/ui/sidebar/toggle", h.UI.ToggleSidebar)
	mux.HandleFunc("POST /api/ui/sidebar/close", h.UI.CloseSidebar)
	mux.HandleFunc("PUT /api/ui/active-pool", h.UI.SetActivePool)

	if h.Audit != nil {
		mux.HandleFunc("GET /api/audit", h.Audit.ListAudit)
		mux.HandleFunc("GET /api/history/pools", h.Audit.ListPoolHistory)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Applied innermost first, so requests pass CORS, logging, auth, rate
	// limit in that order.
	var out http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
	}
	out = middleware.Auth(cfg.APIKey, "/api/health")(out)
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run starts the server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.drain()
	}
}

// drain stops the listener and waits for ordinary requests, then gives
// running actions up to ActionTimeout to finish their receipt waits.
func (s *Server) drain() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	if s.actions == nil {
		return err
	}

	actionCtx, cancelActions := context.WithTimeout(context.Background(), handler.ActionTimeout)
	defer cancelActions()
	if werr := s.actions.Wait(actionCtx); werr != nil {
		s.logger.Warn("server: actions still running at exit", slog.String("error", werr.Error()))
		return errors.Join(err, fmt.Errorf("server: wait for actions: %w", werr))
	}
	// Only actions outlived the shutdown deadline and they have finished.
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
