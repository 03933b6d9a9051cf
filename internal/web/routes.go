package web

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes(source handlers.StatusSource, store handlers.Pinger) {
	healthHandler := handlers.NewHealthHandler(store)
	statusHandler := handlers.NewStatusHandler(source)

	s.router.Get("/healthz", healthHandler.Check)
	s.router.Get("/status", statusHandler.Get)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())
}
