package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the moderation endpoints. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	if metrics != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, metrics)
	}

	r.Post("/v1/moderation/filter", h.Filter)
	return r
}
