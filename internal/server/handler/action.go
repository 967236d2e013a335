package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/buzzpool/internal/domain"
	"github.com/alanyoungcy/buzzpool/internal/market"
)

// ActionTimeout bounds one action including its receipt waits.
const ActionTimeout = 5 * time.Minute

// ActionService is the write side of the market service.
type ActionService interface {
	Snapshot() domain.Snapshot
	CreatePool(ctx context.Context, p domain.CreatePoolParams) error
	PlaceBet(ctx context.Context, poolID uint64, amount decimal.Decimal, targetScore int64) error
	ClaimBet(ctx context.Context, poolID uint64) error
	SetResult(ctx context.Context, poolID uint64, finalScore int64) error
	MintNFT(ctx context.Context) error
	ConvertUSDeToBuzz(ctx context.Context, amount decimal.Decimal) error
	ConvertBuzzToUSDe(ctx context.Context, amount decimal.Decimal) error
}

// ActionHandler serves the state-changing endpoints. Each request blocks
// until the transaction is included or fails.
type ActionHandler struct {
	svc    ActionService
	logger *slog.Logger

	mu      sync.Mutex
	running int
	// idle is closed when running drops back to zero.
	idle    chan struct{}
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(svc ActionService, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{svc: svc, logger: logHandler(logger, "action")}
}

type actionResponse struct {
	Message string          `json:"message"`
	State   domain.Snapshot `json:"state"`
}

type betRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	TargetScore int64           `json:"target_score"`
}

type resultRequest struct {
	FinalScore *int64 `json:"final_score"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// do runs fn detached from client cancellation, so a dropped connection does
// not abandon a submitted transaction, and writes the outcome.
func (h *ActionHandler) do(w http.ResponseWriter, r *http.Request, a market.Action, fn func(ctx context.Context) error) {
	h.begin()
	defer h.end()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), ActionTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		msg := a.Failed
		if errors.Is(err, domain.ErrAlreadyMinted) {
			msg = market.MsgAlreadyMinted
		}
		h.logger.WarnContext(ctx, "handler: action failed",
			slog.String("action", a.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, msg)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Message: a.Done, State: h.svc.Snapshot()})
}

// Wait blocks until every running action has written its response or ctx
// expires.
func (h *ActionHandler) Wait(ctx context.Context) error {
	h.mu.Lock()
	if h.running == 0 {
		h.mu.Unlock()
		return nil
	}
	idle := h.idle
	h.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *ActionHandler) begin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running == 0 {
		h.idle = make(chan struct{})
	}
	h.running++
}

func (h *ActionHandler) end() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running--
	if h.running == 0 {
		close(h.idle)
	}
}

// CreatePool opens a new pool.
// POST /api/pools
func (h *ActionHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePoolParams
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.Deadline.IsZero() {
		writeError(w, http.StatusBadRequest, "deadline is required")
		return
	}
	h.do(w, r, market.ActCreatePool, func(ctx context.Context) error {
		return h.svc.CreatePool(ctx, req)
	})
}

// PlaceBet stakes BUZZ on a target score.
// POST /api/pools/{id}/bets
func (h *ActionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req betRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := domain.ToWei(req.Amount, domain.TokenDecimals); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.do(w, r, market.ActPlaceBet, func(ctx context.Context) error {
		return h.svc.PlaceBet(ctx, id, req.Amount, req.TargetScore)
	})
}

// ClaimBet collects the account's winnings.
// POST /api/pools/{id}/claim
func (h *ActionHandler) ClaimBet(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.do(w, r, market.ActClaimBet, func(ctx context.Context) error {
		return h.svc.ClaimBet(ctx, id)
	})
}

// SetResult records the final score.
// POST /api/pools/{id}/result
func (h *ActionHandler) SetResult(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req resultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FinalScore == nil {
		writeError(w, http.StatusBadRequest, "final_score is required")
		return
	}
	h.do(w, r, market.ActSetResult, func(ctx context.Context) error {
		return h.svc.SetResult(ctx, id, *req.FinalScore)
	})
}

// MintNFT mints the participation NFT.
// POST /api/nft/mint
func (h *ActionHandler) MintNFT(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, market.ActMintNFT, h.svc.MintNFT)
}

// USDeToBuzz converts USDe into BUZZ.
// POST /api/convert/usde-to-buzz
func (h *ActionHandler) USDeToBuzz(w http.ResponseWriter, r *http.Request) {
	h.convert(w, r, market.ActUSDeToBuzz, h.svc.ConvertUSDeToBuzz)
}

// BuzzToUSDe converts BUZZ into USDe.
// POST /api/convert/buzz-to-usde
func (h *ActionHandler) BuzzToUSDe(w http.ResponseWriter, r *http.Request) {
	h.convert(w, r, market.ActBuzzToUSDe, h.svc.ConvertBuzzToUSDe)
}

func (h *ActionHandler) convert(w http.ResponseWriter, r *http.Request, a market.Action, fn func(context.Context, decimal.Decimal) error) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := domain.ToWei(req.Amount, domain.TokenDecimals); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.do(w, r, a, func(ctx context.Context) error {
		return fn(ctx, req.Amount)
	})
}
