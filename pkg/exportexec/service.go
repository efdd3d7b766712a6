// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package exportexec runs a single export to completion in-process. The
// CLI uses it; the server drives the same runtime through the HTTP API.
package exportexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/server/deps"
)

// cancelGrace bounds how long Run waits for the cancel event after its
// context is done.
const cancelGrace = 5 * time.Second

// Params describes one export.
type Params struct {
	Input      string
	UserID     string
	ProjectID  string
	TimelineID string
	Settings   export.Settings
}

// Result is the final state of the job and the validation it passed.
type Result struct {
	Job        export.Job         `json:"job"`
	Validation quality.Validation `json:"validation"`
}

// ProgressSink receives job updates while Run waits.
type ProgressSink interface {
	OnEvent(ProgressEvent)
}

// ProgressEvent is a progress notification for the running job.
type ProgressEvent struct {
	Event     event.Name
	JobID     string
	Status    export.Status
	Phase     export.Phase
	Progress  float64
	Message   string
	Timestamp time.Time
}

// Service orchestrates a single export using the runtime graph.
type Service struct {
	progressSink ProgressSink
}

// NewService builds a Service.
func NewService() *Service {
	return &Service{}
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// Run starts the runtime's dispatch loop, submits the export and blocks
// until the job is terminal. Cancelling ctx cancels the job. The caller
// owns d and stops it.
func (s *Service) Run(ctx context.Context, d *deps.Deps, params Params) (*Result, error) {
	if params.Input == "" {
		return nil, ErrNoInput
	}
	source, err := filepath.Abs(params.Input)
	if err != nil {
		return nil, WithErrorCode(fmt.Errorf("resolve input %q: %w", params.Input, err), errorCodeInputRequired)
	}
	if _, err := os.Stat(source); err != nil {
		return nil, WithErrorCode(fmt.Errorf("input %q: %w", params.Input, err), errorCodeInputRequired)
	}

	timeline, err := json.Marshal(map[string]string{"source": source})
	if err != nil {
		return nil, err
	}

	// Subscribe before submitting so no event of the job can be missed.
	events := make(chan event.Event, 64)
	done := make(chan struct{})
	defer close(done)
	sub := d.Events.Subscribe(func(_ context.Context, e event.Event) {
		select {
		case events <- e:
		case <-done:
		}
	})
	defer sub.Unsubscribe()

	if err := d.Start(context.WithoutCancel(ctx), true); err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}

	job, v, err := d.Exporter.Submit(ctx, d.Queue, export.Request{
		UserID:       params.UserID,
		ProjectID:    params.ProjectID,
		TimelineID:   params.TimelineID,
		Settings:     params.Settings,
		TimelineData: timeline,
	})
	if err != nil {
		return &Result{Validation: v}, err
	}
	d.Logger.Info().Str("job_id", job.ID).Str("source", source).Msg("Export submitted")

	final, err := s.wait(ctx, d, job.ID, events)
	res := &Result{Job: final, Validation: v}
	if err != nil {
		return res, err
	}

	switch final.Status {
	case export.StatusCompleted:
		return res, nil
	case export.StatusCancelled:
		return res, ErrCancelled
	default:
		return res, fmt.Errorf("%w: %s", ErrExportFailed, final.Error)
	}
}

func (s *Service) wait(ctx context.Context, d *deps.Deps, id string, events <-chan event.Event) (export.Job, error) {
	ctxDone := ctx.Done()
	var grace <-chan time.Time

	for {
		select {
		case e := <-events:
			if e.Job.ID != id {
				continue
			}
			s.emit(e)
			if e.Job.Status.IsTerminal() {
				return d.Queue.GetJob(id)
			}
		case <-ctxDone:
			ctxDone = nil
			d.Logger.Info().Str("job_id", id).Msg("Cancelling export")
			d.Queue.CancelJob(id)
			grace = time.After(cancelGrace)
		case <-grace:
			job, err := d.Queue.GetJob(id)
			if err != nil {
				return job, err
			}
			if job.Status.IsTerminal() {
				return job, nil
			}
			return job, errors.Join(ErrCancelled, ctx.Err())
		}
	}
}

func (s *Service) emit(e event.Event) {
	if s.progressSink == nil {
		return
	}
	s.progressSink.OnEvent(ProgressEvent{
		Event:     e.Name,
		JobID:     e.Job.ID,
		Status:    e.Job.Status,
		Phase:     e.Job.CurrentPhase,
		Progress:  e.Job.Progress,
		Message:   e.Job.Message,
		Timestamp: e.Time,
	})
}
