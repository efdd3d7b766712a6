package api

import (
	"context"
	"sync/atomic"

	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/exporter"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/queue"
	"github.com/framecast/framecast/pkg/rendercache"
	"github.com/framecast/framecast/pkg/storage"
)

// Deps holds dependencies for API handlers.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Queue is the live job table
	Queue JobQueue

	// Exporter validates and submits new jobs
	Exporter Submitter

	// Optimizer previews hardware adjustments for POST /exports
	Optimizer *quality.Optimizer
	Strategy  quality.Strategy

	// Cache is nil when caching is disabled
	Cache *rendercache.Cache

	// Archive is nil when storage.backend is "none"
	Archive storage.Backend

	// Events feeds the websocket bridge
	Events *event.Bus

	// Config holds handler timeouts
	Config Config

	// Ready flag for readiness check
	Ready *atomic.Bool

	// Closing is closed when the server begins shutting down. Long-lived
	// handlers (the event websocket) return on it.
	Closing <-chan struct{}
}

// JobQueue is the subset of queue.Manager the API needs.
// Defined here to ease mocking.
type JobQueue interface {
	exporter.Queue
	GetJob(id string) (export.Job, error)
	ListJobs(f queue.Filter) []export.Job
	CancelJob(id string) bool
	PauseJob(id string) error
	ResumeJob(id string) error
	RetryJob(id string) (export.Job, error)
	QueueStatus() queue.Status
	Statistics() queue.Statistics
	Pause()
	Resume()
}

// Submitter validates a request against the hardware and queues it.
type Submitter interface {
	Submit(ctx context.Context, q exporter.Queue, req export.Request) (export.Job, quality.Validation, error)
}

var (
	_ JobQueue  = (*queue.Manager)(nil)
	_ Submitter = (*exporter.Service)(nil)
)
