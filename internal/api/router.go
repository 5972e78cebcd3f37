// Package api assembles the care HTTP server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/middleware"
)

// Registrar mounts a group of routes on the versioned router.
type Registrar interface {
	Register(r chi.Router)
}

type RouterConfig struct {
	ServiceName string
	// APIKeys maps key to client id; empty disables authentication
	APIKeys  map[string]string
	Health   *handlers.HealthHandler
	Metrics  http.Handler
	Observer middleware.Observer
	Routes   []Registrar
}

// NewRouter serves /health, /ready and /metrics unauthenticated and everything else under
// /api/v1 behind the API key check.
func NewRouter(cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	if cfg.Observer != nil {
		r.Use(middleware.Metrics(cfg.Observer))
	}
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		for _, reg := range cfg.Routes {
			reg.Register(r)
		}
	})
	return r
}
