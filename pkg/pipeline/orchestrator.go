// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package pipeline drives one export through its ordered, skippable stages.
//
// Pause and cancel are cooperative: they are observed only between stages,
// and a renderer call that is already running is never interrupted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/export"
)

// RunState is the lifecycle of one Orchestrator.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateCancelled
	StateCompleted
	StateFailed
)

// String returns the label of the state.
func (s RunState) String() string {
	return [...]string{"Idle", "Running", "Paused", "Cancelled", "Completed", "Failed"}[s]
}

// ErrAlreadyExecuted is reported when Execute is called twice.
var ErrAlreadyExecuted = errors.New("pipeline already executed")

// Orchestrator runs a single export. Create one per job.
type Orchestrator struct {
	renderer Renderer
	logger   zerolog.Logger
	jobID    string
	workRoot string

	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error

	mu       sync.Mutex
	state    RunState
	executed bool
	wake     chan struct{} // closed when a paused run may continue
	workDir  string
	overall  float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for stage events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithJobID tags renderer requests and log lines with the job id.
func WithJobID(id string) Option {
	return func(o *Orchestrator) { o.jobID = id }
}

// WithWorkDir sets the parent directory for the run's temporary files.
// Empty means the OS temp directory.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) { o.workRoot = dir }
}

// New creates an orchestrator that renders through r.
func New(r Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		renderer:  r,
		logger:    log.Logger,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "pipeline").Logger()
	if o.jobID != "" {
		o.logger = o.logger.With().Str("job_id", o.jobID).Logger()
	}
	return o
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pause asks the run to stop at the next stage boundary. It reports whether
// the state changed.
func (o *Orchestrator) Pause() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning && o.state != StateIdle {
		return false
	}
	o.state = StatePaused
	o.wake = make(chan struct{})
	o.logger.Info().Msg("Pipeline paused")
	return true
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePaused {
		return false
	}
	o.state = StateRunning
	if !o.executed {
		o.state = StateIdle
	}
	o.release()
	o.logger.Info().Msg("Pipeline resumed")
	return true
}

// Cancel stops the run at the next stage boundary. A paused run is woken
// and ends cancelled.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateIdle, StateRunning, StatePaused:
		o.state = StateCancelled
		o.release()
		o.logger.Info().Msg("Pipeline cancellation requested")
		return true
	default:
		return false
	}
}

// release wakes a waiter blocked in checkpoint. Caller holds mu.
func (o *Orchestrator) release() {
	if o.wake != nil {
		close(o.wake)
		o.wake = nil
	}
}

// checkpoint blocks while paused and reports whether the run must stop.
func (o *Orchestrator) checkpoint(ctx context.Context) bool {
	for {
		o.mu.Lock()
		if ctx.Err() != nil && o.state != StateCancelled {
			o.state = StateCancelled
			o.release()
		}
		switch o.state {
		case StateCancelled:
			o.mu.Unlock()
			return true
		case StatePaused:
			wake := o.wake
			o.mu.Unlock()
			select {
			case <-wake:
			case <-ctx.Done():
			}
		default:
			o.mu.Unlock()
			return false
		}
	}
}

// finish records the terminal state. A cancel that arrived after the last
// boundary is too late to matter and is overwritten.
func (o *Orchestrator) finish(state RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.release()
}

// report emits progress with the overall value clamped to be non-decreasing.
func (o *Orchestrator) report(onProgress func(Progress), p Progress) {
	p.StageProgress = clamp(p.StageProgress)
	o.mu.Lock()
	p.OverallProgress = max(clamp(p.OverallProgress), o.overall)
	o.overall = p.OverallProgress
	o.mu.Unlock()
	if onProgress != nil {
		onProgress(p)
	}
}

func clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

// Execute runs every active stage for settings, turning inputPath into
// outputPath. It never returns an error value: failures and cancellation are
// described by the Result. Temporary files are removed before it returns.
func (o *Orchestrator) Execute(ctx context.Context, inputPath, outputPath string, settings export.Settings, onProgress func(Progress)) Result {
	start := time.Now()
	res := Result{Stages: []StageResult{}}

	o.mu.Lock()
	if o.executed {
		o.mu.Unlock()
		res.Error = ErrAlreadyExecuted.Error()
		return res
	}
	o.executed = true
	if o.state == StateIdle {
		o.state = StateRunning
	}
	o.mu.Unlock()

	defer func() {
		if err := o.Cleanup(); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to remove pipeline work dir")
		}
	}()

	stages := ActiveStages(settings)
	share := 100 / float64(len(stages))
	renderCtx := context.WithoutCancel(ctx)
	current := inputPath

	o.logger.Debug().Int("stages", len(stages)).Str("input", inputPath).Msg("Pipeline started")

	for i, stage := range stages {
		if o.checkpoint(ctx) {
			res.Cancelled = true
			res.TotalDuration = time.Since(start)
			o.logger.Info().Str("stage", string(stage)).Msg("Pipeline cancelled")
			return res
		}

		base := float64(i) * share
		o.report(onProgress, Progress{Stage: stage, OverallProgress: base, Message: "starting " + strings.ToLower(string(stage)), CurrentFile: current})

		target := outputPath
		if stage != StageComplete {
			dir, err := o.ensureWorkDir()
			if err != nil {
				return o.fail(res, start, StageResult{Stage: stage}, &StageError{Stage: stage, Err: err})
			}
			target = filepath.Join(dir, fmt.Sprintf("%02d_%s%s", i, strings.ToLower(string(stage)), filepath.Ext(outputPath)))
		}

		stageStart := time.Now()
		written, err := o.render(renderCtx, RenderRequest{
			JobID:      o.jobID,
			Stage:      stage,
			InputPath:  current,
			OutputPath: target,
			Settings:   settings,
		}, func(pct float64, msg string) {
			o.report(onProgress, Progress{
				Stage:           stage,
				StageProgress:   pct,
				OverallProgress: base + clamp(pct)*share/100,
				Message:         msg,
				CurrentFile:     target,
			})
		})
		sr := StageResult{Stage: stage, Duration: time.Since(stageStart)}
		if err != nil {
			return o.fail(res, start, sr, &StageError{Stage: stage, Err: err})
		}
		if written == "" {
			written = target
		}
		sr.Success = true
		sr.OutputPath = written
		res.Stages = append(res.Stages, sr)
		current = written

		o.logger.Debug().Str("stage", string(stage)).Dur("duration", sr.Duration).Msg("Stage finished")
	}

	o.report(onProgress, Progress{Stage: StageComplete, StageProgress: 100, OverallProgress: 100, Message: "export complete", CurrentFile: current})
	o.finish(StateCompleted)

	res.Success = true
	res.OutputPath = current
	res.TotalDuration = time.Since(start)
	return res
}

func (o *Orchestrator) render(ctx context.Context, req RenderRequest, onProgress func(float64, string)) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return o.renderer.Render(ctx, req, onProgress)
}

func (o *Orchestrator) fail(res Result, start time.Time, sr StageResult, err *StageError) Result {
	sr.Success = false
	sr.Error = err.Err.Error()
	res.Stages = append(res.Stages, sr)
	res.Error = err.Error()
	res.TotalDuration = time.Since(start)
	o.finish(StateFailed)
	o.logger.Error().Err(err.Err).Str("stage", string(err.Stage)).Msg("Pipeline stage failed")
	return res
}

func (o *Orchestrator) ensureWorkDir() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.workDir != "" {
		return o.workDir, nil
	}
	if o.workRoot != "" {
		if err := os.MkdirAll(o.workRoot, 0o755); err != nil {
			return "", fmt.Errorf("create work root: %w", err)
		}
	}
	dir, err := o.mkdirTemp(o.workRoot, "framecast-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	o.workDir = dir
	return dir, nil
}

// Cleanup removes the run's temporary directory. It is safe to call more
// than once.
func (o *Orchestrator) Cleanup() error {
	o.mu.Lock()
	dir := o.workDir
	o.workDir = ""
	o.mu.Unlock()
	if dir == "" {
		return nil
	}
	return o.removeAll(dir)
}
