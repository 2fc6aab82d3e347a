package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var errNoAudit = errors.New("audit log is not configured")

type auditView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditHandler lists audit entries.
type AuditHandler struct {
	store domain.AuditStore
}

// NewAuditHandler creates an AuditHandler. store may be nil.
func NewAuditHandler(store domain.AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// ListAudit responds with entries newest first.
// GET /api/audit
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, errNoAudit.Error())
		return
	}
	entries, err := h.store.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
