package handlers

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/orchestrator"
)

// StatusSource yields the loop snapshot served at /status.
type StatusSource interface {
	Status() orchestrator.Status
}

// StatusHandler exposes the attendance loop state as JSON.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a status handler reading from the given source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// Get handles the status endpoint.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.Status())
}
