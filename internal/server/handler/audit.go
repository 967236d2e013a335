package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// AuditHandler serves the action audit log and the mirrored pool history.
type AuditHandler struct {
	audit   domain.AuditStore
	pools   domain.PoolStore
	chainID int64
	logger  *slog.Logger
}

// NewAuditHandler creates an AuditHandler. Either store may be nil, in which
// case its endpoint answers 503.
func NewAuditHandler(audit domain.AuditStore, pools domain.PoolStore, chainID int64, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, pools: pools, chainID: chainID, logger: logHandler(logger, "audit")}
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?limit=50&offset=0&since=...&until=...
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// ListPoolHistory returns pools from the database mirror, which keeps pools
// seen by earlier refreshes.
// GET /api/history/pools?limit=50&offset=0
func (h *AuditHandler) ListPoolHistory(w http.ResponseWriter, r *http.Request) {
	if h.pools == nil {
		writeError(w, http.StatusServiceUnavailable, "pool store not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pools, err := h.pools.List(r.Context(), h.chainID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pool history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list pools")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pools":  pools,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
