// Package router assembles the relay's status HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/dmarin/chatrelay/internal/http/middleware"
	"github.com/dmarin/chatrelay/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Status         *StatusHandler
	MetricsHandler http.Handler
	LiveHandler    http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Status.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.LiveHandler != nil {
		r.Handle("/live", cfg.LiveHandler)
	}

	r.Post("/webhooks/inbound", cfg.Status.Inbound)

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", cfg.Status.Stats)
		api.Get("/search", cfg.Status.Search)
		api.Get("/sessions/{contactID}/export", cfg.Status.Export)
		api.Post("/send", cfg.Status.Send)
		api.Post("/broadcast", cfg.Status.Broadcast)
		api.Get("/probe", cfg.Status.Probe)
	})

	return r
}
