// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package queue owns the export job table: lifecycle transitions, the
// concurrency cap, dispatch to a Processor and statistics.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/framecast/framecast/pkg/export"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned for a status change outside the job
	// state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrInvalidState is returned when an operation does not apply to the
	// job's current status.
	ErrInvalidState = errors.New("operation not allowed in current job state")
	// ErrNotRetryable is returned by RetryJob for jobs that cannot be retried.
	ErrNotRetryable = errors.New("job cannot be retried")
	// ErrConcurrencyLimit is returned when promoting a job would exceed the
	// configured number of processing jobs.
	ErrConcurrencyLimit = errors.New("concurrency limit reached")
	// ErrCancelled is returned by a Processor whose run stopped because the
	// job was cancelled.
	ErrCancelled = errors.New("job cancelled")
)

// Config holds the queue.* settings.
type Config struct {
	MaxConcurrent int
	PollInterval  time.Duration
	MaxAttempts   int
}

// DefaultConfig returns the defaults used when a field is unset.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 2,
		PollInterval:  time.Second,
		MaxAttempts:   3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Controller steers a running job. pipeline.Orchestrator satisfies it.
type Controller interface {
	Pause() bool
	Resume() bool
	Cancel() bool
}

// Task is handed to a Processor for one promoted job.
type Task struct {
	// Job is a snapshot taken at promotion time.
	Job export.Job

	// Progress records job progress. Calls after the job left PROCESSING are
	// ignored.
	Progress func(progress float64, phase export.Phase, message string)

	// Adjust records the settings the job is actually rendered with.
	Adjust func(settings export.Settings, adjustments []string)

	// Attach registers the controller of the run so pause, resume and cancel
	// reach it.
	Attach func(Controller)
}

// Processor renders a promoted job. Returning ErrCancelled marks the job
// CANCELLED, any other error marks it FAILED.
type Processor interface {
	Process(ctx context.Context, task Task) (export.ResultFields, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, task Task) (export.ResultFields, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, task Task) (export.ResultFields, error) {
	return f(ctx, task)
}

// Filter selects jobs for ListJobs. Zero fields match everything.
type Filter struct {
	UserID    string
	ProjectID string
	Status    export.Status
	Limit     int
}

func (f Filter) match(j *export.Job) bool {
	if f.UserID != "" && j.UserID != f.UserID {
		return false
	}
	if f.ProjectID != "" && j.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// Status is a point-in-time count of jobs per status.
type Status struct {
	Total         int  `json:"total"`
	Pending       int  `json:"pending"`
	Processing    int  `json:"processing"`
	Completed     int  `json:"completed"`
	Failed        int  `json:"failed"`
	Cancelled     int  `json:"cancelled"`
	MaxConcurrent int  `json:"max_concurrent"`
	Paused        bool `json:"paused"`
}

func (s *Status) count(st export.Status) {
	s.Total++
	switch st {
	case export.StatusPending:
		s.Pending++
	case export.StatusProcessing:
		s.Processing++
	case export.StatusCompleted:
		s.Completed++
	case export.StatusFailed:
		s.Failed++
	case export.StatusCancelled:
		s.Cancelled++
	}
}

// Statistics extends Status with durations over COMPLETED jobs, measured
// from creation to completion.
type Statistics struct {
	Status
	AverageDuration time.Duration
	TotalDuration   time.Duration
}

// MarshalJSON renders durations in seconds.
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status
		AverageDuration float64 `json:"average_duration_seconds"`
		TotalDuration   float64 `json:"total_duration_seconds"`
	}{s.Status, s.AverageDuration.Seconds(), s.TotalDuration.Seconds()})
}
