package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// StateService is the read side of the market service.
type StateService interface {
	Snapshot() domain.Snapshot
	Pool(id uint64) (domain.Pool, error)
	RefreshAll(ctx context.Context) error
	FormatTimestamp(unix int64) string
}

// ToastSource lists recent notifications.
type ToastSource interface {
	Recent() []domain.Toast
}

// StateHandler serves the mirrored account state.
type StateHandler struct {
	svc    StateService
	toasts ToastSource
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(svc StateService, toasts ToastSource, logger *slog.Logger) *StateHandler {
	return &StateHandler{svc: svc, toasts: toasts, logger: logHandler(logger, "state")}
}

// poolView adds display dates to a pool.
type poolView struct {
	domain.Pool
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *StateHandler) view(p domain.Pool) poolView {
	return poolView{
		Pool:      p,
		StartDate: h.svc.FormatTimestamp(p.StartTime),
		EndDate:   h.svc.FormatTimestamp(p.EndTime),
	}
}

// GetState returns the full snapshot.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

type listPoolsResponse struct {
	Pools   []poolView `json:"pools"`
	Total   int        `json:"total"`
	Loading bool       `json:"loading"`
}

// ListPools returns the mirrored pools, optionally filtered.
// GET /api/pools?ended=true&category=crypto
func (h *StateHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var ended *bool
	if v := q.Get("ended"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ended must be a boolean")
			return
		}
		ended = &b
	}
	category := q.Get("category")

	snap := h.svc.Snapshot()
	out := make([]poolView, 0, len(snap.Pools))
	for _, p := range snap.Pools {
		if ended != nil && p.Ended != *ended {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, h.view(p))
	}

	writeJSON(w, http.StatusOK, listPoolsResponse{
		Pools:   out,
		Total:   len(out),
		Loading: snap.Loading,
	})
}

// GetPool returns one pool with all of its bets.
// GET /api/pools/{id}
func (h *StateHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.Pool(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get pool")
		return
	}
	writeJSON(w, http.StatusOK, h.view(p))
}

// MyBets returns the bets placed by the service account.
// GET /api/bets/me
func (h *StateHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"account": snap.Account,
		"bets":    snap.UserBets,
	})
}

// Balance returns the BUZZ and USDe holdings.
// GET /api/balance
func (h *StateHandler) Balance(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"account":       snap.Account,
		"token_balance": snap.Balance,
		"nft_minted":    snap.NFTMinted,
	})
}

// Toasts returns recent notifications, newest last.
// GET /api/toasts
func (h *StateHandler) Toasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"toasts": h.toasts.Recent()})
}

// Refresh re-reads balances, pools and the NFT flag.
// POST /api/refresh
func (h *StateHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := h.svc.RefreshAll(ctx); err != nil {
		h.logger.ErrorContext(ctx, "handler: refresh failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "refresh incomplete",
			"state": h.svc.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}
