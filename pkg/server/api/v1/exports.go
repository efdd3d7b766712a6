// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/queue"
	"github.com/framecast/framecast/pkg/server/api"
	"github.com/framecast/framecast/pkg/storage"
)

// OptimizationPreview shows what the exporter will change before rendering.
// The job keeps the requested settings until it is dispatched.
type OptimizationPreview struct {
	Strategy    quality.Strategy `json:"strategy"`
	Settings    export.Settings  `json:"settings"`
	Adjustments []string         `json:"adjustments"`
}

// CreateExportResponse is returned by POST /api/v1/exports.
type CreateExportResponse struct {
	Job          export.Job           `json:"job"`
	Validation   quality.Validation   `json:"validation"`
	Optimization *OptimizationPreview `json:"optimization,omitempty"`
}

// ValidateExportRequest is the body of POST /api/v1/exports/validate.
type ValidateExportRequest struct {
	Settings export.Settings `json:"settings"`
}

// ValidateExportResponse is returned by POST /api/v1/exports/validate.
type ValidateExportResponse struct {
	Validation   quality.Validation   `json:"validation"`
	Optimization *OptimizationPreview `json:"optimization,omitempty"`
}

// ListExportsResponse is returned by GET /api/v1/exports.
type ListExportsResponse struct {
	Jobs       []export.Job `json:"jobs"`
	Count      int          `json:"count"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// CreateExportHandler handles POST /api/v1/exports
//
// The request is validated against the current hardware profile. Invalid
// settings answer 422 with the issues and no job is created. On success the
// response carries the PENDING job and a preview of the adjustments the
// exporter will apply.
func CreateExportHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := deps.Config.WithTimeout(r.Context())
		defer cancel()
		deps.Config.LimitBody(w, r)

		req, err := ParseExportRequest(r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		job, v, err := deps.Exporter.Submit(ctx, deps.Queue, req)
		if err != nil {
			var verr *quality.ValidationError
			if errors.As(err, &verr) {
				api.WriteValidationError(w, v)
				return
			}
			api.WriteError(w, r, err)
			return
		}

		log.Info().
			Str("component", "api").
			Str("job_id", job.ID).
			Str("user_id", job.UserID).
			Msg("Export job created")

		api.WriteJSON(w, http.StatusCreated, CreateExportResponse{
			Job:          job,
			Validation:   v,
			Optimization: preview(r, deps, req.Settings),
		})
	}
}

// ValidateExportHandler handles POST /api/v1/exports/validate
//
// Always answers 200; validity is reported in the body.
func ValidateExportHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := deps.Config.WithTimeout(r.Context())
		defer cancel()

		if deps.Optimizer == nil {
			api.WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "optimizer is not configured")
			return
		}

		deps.Config.LimitBody(w, r)
		var body ValidateExportRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteError(w, r, &ValidationError{Field: "body", Reason: "invalid JSON"})
			return
		}

		v, err := deps.Optimizer.Validate(ctx, body.Settings)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, ValidateExportResponse{
			Validation:   v,
			Optimization: preview(r, deps, body.Settings),
		})
	}
}

// preview runs the optimizer without side effects. Failures only drop the
// preview from the response.
func preview(r *http.Request, deps *api.Deps, settings export.Settings) *OptimizationPreview {
	if deps.Optimizer == nil {
		return nil
	}
	res, err := deps.Optimizer.Optimize(r.Context(), settings, deps.Strategy)
	if err != nil {
		log.Warn().Str("component", "api").Err(err).Msg("Optimization preview failed")
		return nil
	}
	adjustments := res.Adjustments
	if adjustments == nil {
		adjustments = []string{}
	}
	return &OptimizationPreview{Strategy: res.Strategy, Settings: res.Settings, Adjustments: adjustments}
}

// ListExportsHandler handles GET /api/v1/exports
//
// Query parameters: user, project, status, limit (1-100, default 50).
// With archived=true the job archive is read instead of the live queue and
// the response is paged newest first via cursor/next_cursor.
func ListExportsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseListExportsQuery(r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		if !q.Archived {
			jobs := deps.Queue.ListJobs(queue.Filter{
				UserID:    q.UserID,
				ProjectID: q.ProjectID,
				Status:    q.Status,
				Limit:     q.Limit,
			})
			if jobs == nil {
				jobs = []export.Job{}
			}
			api.WriteJSON(w, http.StatusOK, ListExportsResponse{Jobs: jobs, Count: len(jobs)})
			return
		}

		if deps.Archive == nil {
			api.WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "job archive is disabled")
			return
		}

		ctx, cancel := deps.Config.WithTimeout(r.Context())
		defer cancel()

		page, err := deps.Archive.List(ctx, storage.ListOptions{
			UserID:    q.UserID,
			ProjectID: q.ProjectID,
			Status:    q.Status,
			Limit:     q.Limit,
			Cursor:    q.Cursor,
		})
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		jobs := page.Jobs
		if jobs == nil {
			jobs = []export.Job{}
		}
		api.WriteJSON(w, http.StatusOK, ListExportsResponse{Jobs: jobs, Count: len(jobs), NextCursor: page.NextCursor})
	}
}

// GetExportHandler handles GET /api/v1/exports/{id}
//
// Jobs that are no longer in the live queue (e.g. after a restart) are read
// from the archive when one is configured. Returns 404 if neither knows the
// id.
func GetExportHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateJobID(id); err != nil {
			api.WriteError(w, r, err)
			return
		}

		job, err := deps.Queue.GetJob(id)
		if err == nil {
			api.WriteJSON(w, http.StatusOK, job)
			return
		}
		if !errors.Is(err, queue.ErrJobNotFound) || deps.Archive == nil {
			api.WriteError(w, r, err)
			return
		}

		ctx, cancel := deps.Config.WithTimeout(r.Context())
		defer cancel()
		job, err = deps.Archive.Get(ctx, id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, job)
	}
}

// CancelExportHandler handles POST /api/v1/exports/{id}/cancel
//
// Returns the job after cancellation, 404 for unknown ids and 409 when the
// job already finished.
func CancelExportHandler(deps *api.Deps) http.HandlerFunc {
	return jobAction(deps, func(id string) error {
		if deps.Queue.CancelJob(id) {
			return nil
		}
		job, err := deps.Queue.GetJob(id)
		if err != nil {
			return err
		}
		return &stateError{status: job.Status}
	})
}

// PauseExportHandler handles POST /api/v1/exports/{id}/pause
func PauseExportHandler(deps *api.Deps) http.HandlerFunc {
	return jobAction(deps, deps.Queue.PauseJob)
}

// ResumeExportHandler handles POST /api/v1/exports/{id}/resume
func ResumeExportHandler(deps *api.Deps) http.HandlerFunc {
	return jobAction(deps, deps.Queue.ResumeJob)
}

// RetryExportHandler handles POST /api/v1/exports/{id}/retry
//
// Answers 201 with the new PENDING job; the original stays terminal.
func RetryExportHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateJobID(id); err != nil {
			api.WriteError(w, r, err)
			return
		}
		job, err := deps.Queue.RetryJob(id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, job)
	}
}

// jobAction runs fn for the {id} path parameter and answers with the job.
func jobAction(deps *api.Deps, fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateJobID(id); err != nil {
			api.WriteError(w, r, err)
			return
		}
		if err := fn(id); err != nil {
			api.WriteError(w, r, err)
			return
		}
		job, err := deps.Queue.GetJob(id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, job)
	}
}

// stateError reports an action on a job whose status does not allow it.
type stateError struct {
	status export.Status
}

func (e *stateError) Error() string {
	return "job is already " + string(e.status)
}

func (e *stateError) Unwrap() error { return queue.ErrInvalidState }
