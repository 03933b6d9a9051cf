package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/rollcall/internal/log"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers the liveness probe. A nil store degrades the
// check to a plain process-is-up answer.
type HealthHandler struct {
	store  Pinger
	logger zerolog.Logger
}

// NewHealthHandler creates a health handler probing the given store.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: log.WithComponent("web"),
	}
}

// Check handles the health check endpoint.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed, store unreachable")
			respondError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
