// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package export holds the domain types shared by the queue, the rendering
// pipeline and the outer surfaces: jobs, their lifecycle states and the
// settings a render is performed with.
package export

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of an export job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Phase is a coarse label for what a processing job is currently doing.
type Phase string

const (
	PhaseInitializing    Phase = "INITIALIZING"
	PhaseProcessingAudio Phase = "PROCESSING_AUDIO"
	PhaseProcessingVideo Phase = "PROCESSING_VIDEO"
	PhaseWatermark       Phase = "APPLYING_WATERMARK"
	PhaseSubtitles       Phase = "RENDERING_SUBTITLES"
	PhaseEncoding        Phase = "ENCODING"
	PhaseFinalizing      Phase = "FINALIZING"
)

// Job is a single export request and its lifecycle record.
//
// Jobs handed out by the queue are snapshots; mutating one has no effect on
// the queue's own record.
type Job struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ProjectID    string          `json:"project_id"`
	TimelineID   string          `json:"timeline_id"`
	Settings     Settings        `json:"settings"`
	TimelineData json.RawMessage `json:"timeline_data,omitempty"`

	Status       Status  `json:"status"`
	Progress     float64 `json:"progress"`
	CurrentPhase Phase   `json:"current_phase,omitempty"`
	Message      string  `json:"message,omitempty"`
	Paused       bool    `json:"paused,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	OutputURL  string  `json:"output_url,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
	FileSize   int64   `json:"file_size,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Error      string  `json:"error,omitempty"`

	Attempt     int      `json:"attempt"`
	RetryOf     string   `json:"retry_of,omitempty"`
	CacheHit    bool     `json:"cache_hit,omitempty"`
	Adjustments []string `json:"adjustments,omitempty"`
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	out := j
	out.Settings = j.Settings.Clone()
	if j.TimelineData != nil {
		out.TimelineData = append(json.RawMessage(nil), j.TimelineData...)
	}
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	out.FailedAt = cloneTime(j.FailedAt)
	out.CancelledAt = cloneTime(j.CancelledAt)
	if j.Adjustments != nil {
		out.Adjustments = append([]string(nil), j.Adjustments...)
	}
	return out
}

// FinishedAt returns the terminal timestamp matching the job's status, if any.
func (j Job) FinishedAt() *time.Time {
	switch j.Status {
	case StatusCompleted:
		return j.CompletedAt
	case StatusFailed:
		return j.FailedAt
	case StatusCancelled:
		return j.CancelledAt
	default:
		return nil
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ResultFields are merged into a job when it reaches a terminal state.
// Zero values are ignored.
type ResultFields struct {
	OutputURL  string  `json:"output_url,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
	FileSize   int64   `json:"file_size,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Error      string  `json:"error,omitempty"`
	CacheHit   bool    `json:"cache_hit,omitempty"`
}

// Apply merges the non-zero fields of r into j.
func (r ResultFields) Apply(j *Job) {
	if r.OutputURL != "" {
		j.OutputURL = r.OutputURL
	}
	if r.OutputPath != "" {
		j.OutputPath = r.OutputPath
	}
	if r.FileSize != 0 {
		j.FileSize = r.FileSize
	}
	if r.Duration != 0 {
		j.Duration = r.Duration
	}
	if r.Error != "" {
		j.Error = r.Error
	}
	if r.CacheHit {
		j.CacheHit = true
	}
}

// Request is the job creation contract accepted by the outer surfaces.
type Request struct {
	UserID       string          `json:"user_id" validate:"required"`
	ProjectID    string          `json:"project_id" validate:"required"`
	TimelineID   string          `json:"timeline_id" validate:"required"`
	Settings     Settings        `json:"settings"`
	TimelineData json.RawMessage `json:"timeline_data,omitempty"`
}

// Validate checks owner fields and settings.
func (r Request) Validate() error {
	var out FieldErrors
	if err := validate.Struct(r); err != nil {
		fe, ok := toFieldErrors(err).(FieldErrors)
		if !ok {
			return err
		}
		for _, e := range fe {
			e.Field = trimRequestPrefix(e.Field)
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		return out
	}
	return nil
}

func trimRequestPrefix(field string) string {
	return strings.TrimPrefix(field, "Request.")
}
