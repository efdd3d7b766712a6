// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/server/api"
	v1 "github.com/framecast/framecast/pkg/server/api/v1"
)

// NewRouter creates and configures the main HTTP router.
// It mounts health endpoints and, when cfg.APIEnabled, the v1 API.
//
// Health endpoints are always enabled for liveness/readiness checks.
func NewRouter(cfg config.ServerConfig, deps *api.Deps) chi.Router {
	r := chi.NewRouter()

	// Health endpoints (always enabled)
	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", v1.ReadyzHandler(deps.Ready, deps.Queue))

	if !cfg.APIEnabled {
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/exports", func(r chi.Router) {
			r.Post("/", v1.CreateExportHandler(deps))
			r.Get("/", v1.ListExportsHandler(deps))
			r.Post("/validate", v1.ValidateExportHandler(deps))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", v1.GetExportHandler(deps))
				r.Post("/cancel", v1.CancelExportHandler(deps))
				r.Post("/pause", v1.PauseExportHandler(deps))
				r.Post("/resume", v1.ResumeExportHandler(deps))
				r.Post("/retry", v1.RetryExportHandler(deps))
			})
		})

		r.Get("/queue/status", v1.QueueStatusHandler(deps))
		r.Get("/queue/statistics", v1.QueueStatisticsHandler(deps))
		r.Post("/queue/pause", v1.PauseQueueHandler(deps))
		r.Post("/queue/resume", v1.ResumeQueueHandler(deps))
		r.Get("/cache/stats", v1.CacheStatsHandler(deps))
		r.Get("/events", v1.EventsHandler(deps))
	})

	return r
}

// HealthzHandler responds with 200 OK if the server process is alive.
// This endpoint is used by load balancers and orchestrators for liveness checks.
//
// It does not check dependencies (queue, cache, archive) - just process health.
// For comprehensive readiness checks, use /readyz instead.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
