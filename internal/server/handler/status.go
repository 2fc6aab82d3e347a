package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// StatusSource is satisfied by *dispatch.Dispatcher.
type StatusSource interface {
	Status() dispatch.Status
	LastSnapshot() (domain.PerformanceSnapshot, bool)
}

// StatusHandler serves the run status and latest performance snapshot.
type StatusHandler struct {
	src        StatusSource
	strategies any
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(src StatusSource) *StatusHandler {
	return &StatusHandler{src: src}
}

// GetStatus responds with the run status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": h.src.Status()}
	if snap, ok := h.src.LastSnapshot(); ok {
		resp["performance"] = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// WithStrategies sets the catalogue served by ListStrategies.
func (h *StatusHandler) WithStrategies(infos any) *StatusHandler {
	h.strategies = infos
	return h
}

// ListStrategies responds with the strategies this build can run.
// GET /api/strategies
func (h *StatusHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": h.strategies})
}
