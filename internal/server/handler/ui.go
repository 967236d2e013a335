package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// UIService holds the selection state shared with the front end.
type UIService interface {
	ToggleSidebar(ctx context.Context) bool
	CloseSidebar(ctx context.Context)
	SetActivePool(ctx context.Context, id uint64)
}

// UIHandler serves the sidebar and active pool endpoints.
type UIHandler struct {
	svc    UIService
	logger *slog.Logger
}

// NewUIHandler creates a UIHandler.
func NewUIHandler(svc UIService, logger *slog.Logger) *UIHandler {
	return &UIHandler{svc: svc, logger: logHandler(logger, "ui")}
}

// ToggleSidebar flips the sidebar flag.
// POST /api/ui/sidebar/toggle
func (h *UIHandler) ToggleSidebar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"is_open": h.svc.ToggleSidebar(r.Context())})
}

// CloseSidebar clears the sidebar flag.
// POST /api/ui/sidebar/close
func (h *UIHandler) CloseSidebar(w http.ResponseWriter, r *http.Request) {
	h.svc.CloseSidebar(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"is_open": false})
}

// SetActivePool selects a pool. The id is not checked against known pools.
// PUT /api/ui/active-pool
func (h *UIHandler) SetActivePool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PoolID *uint64 `json:"pool_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PoolID == nil {
		writeError(w, http.StatusBadRequest, "pool_id is required")
		return
	}
	h.svc.SetActivePool(r.Context(), *req.PoolID)
	writeJSON(w, http.StatusOK, map[string]uint64{"active_pool_id": *req.PoolID})
}
