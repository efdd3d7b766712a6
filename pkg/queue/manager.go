// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/export"
)

// Manager is the in-memory job queue. It is the only writer of its job
// table; callers always receive snapshots.
type Manager struct {
	cfg       Config
	processor Processor
	events    event.Publisher
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.RWMutex
	jobs    map[string]*export.Job
	order   []string
	running map[string]*run
	gate    *semaphore.Weighted
	wake    chan struct{}
	halted  bool // no promotions while set; running jobs are untouched

	// work context for processors; cancelled only when Stop times out
	workCtx context.Context
	abort   context.CancelFunc
	workers sync.WaitGroup

	lifeMu     sync.Mutex
	started    bool
	cancelFunc context.CancelFunc
	loopDone   chan struct{}
}

// run tracks a PROCESSING job. A run owned by a worker keeps its gate
// slot until the processor returns, even after the job went terminal.
type run struct {
	cancel context.CancelFunc
	ctx    context.Context
	ctrl   Controller
	worker bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithProcessor sets the processor promoted jobs are handed to. Without one
// the dispatch loop only promotes jobs and an external worker drives them
// through the update operations.
func WithProcessor(p Processor) Option {
	return func(m *Manager) { m.processor = p }
}

// WithEvents sets the publisher lifecycle events go to.
func WithEvents(p event.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a queue. Zero config fields fall back to DefaultConfig.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:     cfg,
		events:  nopPublisher{},
		logger:  log.Logger,
		now:     time.Now,
		newID:   uuid.NewString,
		jobs:    make(map[string]*export.Job),
		running: make(map[string]*run),
		gate:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "queue").Logger()
	m.workCtx, m.abort = context.WithCancel(context.Background())
	return m
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, event.Name, export.Job) {}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// AddJob creates a PENDING job and wakes the dispatch loop.
func (m *Manager) AddJob(userID, projectID, timelineID string, settings export.Settings, timelineData []byte) export.Job {
	m.mu.Lock()
	job := m.addLocked(export.Job{
		UserID:       userID,
		ProjectID:    projectID,
		TimelineID:   timelineID,
		Settings:     settings.Clone(),
		TimelineData: append([]byte(nil), timelineData...),
		Attempt:      1,
	})
	snap := job.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("job_id", snap.ID).Str("user_id", userID).Msg("Job queued")
	m.signal()
	return snap
}

// Submit is AddJob for a creation request.
func (m *Manager) Submit(req export.Request) export.Job {
	return m.AddJob(req.UserID, req.ProjectID, req.TimelineID, req.Settings, req.TimelineData)
}

func (m *Manager) addLocked(j export.Job) *export.Job {
	j.ID = m.newID()
	j.Status = export.StatusPending
	j.Progress = 0
	j.CreatedAt = m.now().UTC()
	if len(j.TimelineData) == 0 {
		j.TimelineData = nil
	}
	job := &j
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.publish(event.JobAdded, job)
	return job
}

// UpdateJobStatus moves a job along the state machine and merges result
// fields. Updating a job that is already terminal is a no-op.
func (m *Manager) UpdateJobStatus(id string, status export.Status, result *export.ResultFields) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	if !allowed(job.Status, status) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	if status == export.StatusProcessing && !m.gate.TryAcquire(1) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d jobs processing", ErrConcurrencyLimit, m.cfg.MaxConcurrent)
	}
	ctrl := m.transitionLocked(job, status, result)
	m.mu.Unlock()

	if ctrl != nil {
		ctrl.Cancel()
	}
	if status.IsTerminal() {
		m.signal()
	}
	return nil
}

// allowed reports whether from -> to is an edge of the job state machine.
func allowed(from, to export.Status) bool {
	switch from {
	case export.StatusPending:
		return to == export.StatusProcessing || to == export.StatusCancelled
	case export.StatusProcessing:
		return to == export.StatusCompleted || to == export.StatusFailed || to == export.StatusCancelled
	default:
		return false
	}
}

// transitionLocked applies a validated transition. Promotion to PROCESSING
// must already hold a gate slot. Leaving PROCESSING releases the slot unless
// a worker owns the run. When a processing job is cancelled the run
// controller is returned so the caller can stop it outside the lock.
func (m *Manager) transitionLocked(job *export.Job, to export.Status, result *export.ResultFields) Controller {
	from := job.Status
	now := m.now().UTC()
	job.Status = to

	switch to {
	case export.StatusProcessing:
		job.StartedAt = &now
		job.CurrentPhase = export.PhaseInitializing
		ctx, cancel := context.WithCancel(m.workCtx)
		m.running[job.ID] = &run{ctx: ctx, cancel: cancel}
	case export.StatusCompleted:
		job.CompletedAt = &now
	case export.StatusFailed:
		job.FailedAt = &now
	case export.StatusCancelled:
		job.CancelledAt = &now
	}
	if result != nil {
		result.Apply(job)
	}

	var ctrl Controller
	if to.IsTerminal() {
		job.Paused = false
		if r, ok := m.running[job.ID]; ok && from == export.StatusProcessing {
			delete(m.running, job.ID)
			r.cancel()
			if !r.worker {
				m.gate.Release(1)
			}
			if to == export.StatusCancelled {
				ctrl = r.ctrl
			}
		}
	}

	if name := statusEvent(to); name != event.JobUpdated {
		m.publish(name, job)
	}
	m.publish(event.JobUpdated, job)

	m.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Job status changed")
	return ctrl
}

func statusEvent(s export.Status) event.Name {
	switch s {
	case export.StatusProcessing:
		return event.JobStart
	case export.StatusCompleted:
		return event.JobCompleted
	case export.StatusFailed:
		return event.JobFailed
	case export.StatusCancelled:
		return event.JobCancelled
	default:
		return event.JobUpdated
	}
}

// UpdateJobProgress records progress of a PROCESSING job. Progress is
// clamped to [0,100] and never decreases; phase and message are updated
// when non-empty.
func (m *Manager) UpdateJobProgress(id string, progress float64, phase export.Phase, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != export.StatusProcessing {
		return fmt.Errorf("%w: progress on %s job", ErrInvalidState, job.Status)
	}
	job.Progress = max(job.Progress, min(max(progress, 0), 100))
	if phase != "" {
		job.CurrentPhase = phase
	}
	if message != "" {
		job.Message = message
	}
	m.publish(event.JobProgress, job)
	return nil
}

// CancelJob cancels a PENDING or PROCESSING job and reports whether it did.
// A running pipeline stops at its next stage boundary.
func (m *Manager) CancelJob(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	ctrl := m.transitionLocked(job, export.StatusCancelled, nil)
	m.mu.Unlock()

	if ctrl != nil {
		ctrl.Cancel()
	}
	m.signal()
	return true
}

// PauseJob pauses the pipeline of a PROCESSING job at its next stage
// boundary.
func (m *Manager) PauseJob(id string) error {
	return m.setPaused(id, true)
}

// ResumeJob continues a paused job.
func (m *Manager) ResumeJob(id string) error {
	return m.setPaused(id, false)
}

func (m *Manager) setPaused(id string, paused bool) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != export.StatusProcessing {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot pause or resume %s job", ErrInvalidState, job.Status)
	}
	if job.Paused == paused {
		m.mu.Unlock()
		return nil
	}
	job.Paused = paused
	var ctrl Controller
	if r, ok := m.running[id]; ok {
		ctrl = r.ctrl
	}
	m.publish(event.JobUpdated, job)
	m.mu.Unlock()

	if ctrl != nil {
		if paused {
			ctrl.Pause()
		} else {
			ctrl.Resume()
		}
	}
	return nil
}

// RetryJob queues a fresh copy of a FAILED or CANCELLED job. The original
// stays terminal.
func (m *Manager) RetryJob(id string) (export.Job, error) {
	m.mu.Lock()
	old, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return export.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if old.Status != export.StatusFailed && old.Status != export.StatusCancelled {
		m.mu.Unlock()
		return export.Job{}, fmt.Errorf("%w: status is %s", ErrNotRetryable, old.Status)
	}
	if old.Attempt >= m.cfg.MaxAttempts {
		m.mu.Unlock()
		return export.Job{}, fmt.Errorf("%w: attempt limit %d reached", ErrNotRetryable, m.cfg.MaxAttempts)
	}
	for _, j := range m.jobs {
		if j.RetryOf == id {
			m.mu.Unlock()
			return export.Job{}, fmt.Errorf("%w: already retried as %s", ErrNotRetryable, j.ID)
		}
	}
	job := m.addLocked(export.Job{
		UserID:       old.UserID,
		ProjectID:    old.ProjectID,
		TimelineID:   old.TimelineID,
		Settings:     old.Settings.Clone(),
		TimelineData: append([]byte(nil), old.TimelineData...),
		Attempt:      old.Attempt + 1,
		RetryOf:      old.ID,
	})
	snap := job.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("job_id", snap.ID).Str("retry_of", id).Int("attempt", snap.Attempt).Msg("Job retried")
	m.signal()
	return snap, nil
}

// GetJob returns a snapshot of the job.
func (m *Manager) GetJob(id string) (export.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return export.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// GetUserJobs returns the user's jobs oldest first.
func (m *Manager) GetUserJobs(userID string) []export.Job {
	return m.ListJobs(Filter{UserID: userID})
}

// GetProjectJobs returns the project's jobs oldest first.
func (m *Manager) GetProjectJobs(projectID string) []export.Job {
	return m.ListJobs(Filter{ProjectID: projectID})
}

// ListJobs returns jobs matching f, oldest first.
func (m *Manager) ListJobs(f Filter) []export.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]export.Job, 0)
	for _, id := range m.order {
		job := m.jobs[id]
		if !f.match(job) {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// QueueStatus counts jobs per status from the current table.
func (m *Manager) QueueStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	s := Status{MaxConcurrent: m.cfg.MaxConcurrent, Paused: m.halted}
	for _, job := range m.jobs {
		s.count(job.Status)
	}
	return s
}

// Statistics returns per-status counts and the completion durations of
// COMPLETED jobs. AverageDuration is zero when none completed.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Statistics{Status: m.statusLocked()}
	completed := 0
	for _, job := range m.jobs {
		if job.Status != export.StatusCompleted || job.CompletedAt == nil {
			continue
		}
		st.TotalDuration += job.CompletedAt.Sub(job.CreatedAt)
		completed++
	}
	if completed > 0 {
		st.AverageDuration = st.TotalDuration / time.Duration(completed)
	}
	return st
}

// ProcessNextJob promotes the oldest PENDING job when fewer than
// MaxConcurrent jobs are processing and hands it to the processor. It
// reports whether a job was promoted.
func (m *Manager) ProcessNextJob() bool {
	m.mu.Lock()
	if m.halted {
		m.mu.Unlock()
		return false
	}
	job := m.oldestPendingLocked()
	if job == nil {
		m.mu.Unlock()
		return false
	}
	if !m.gate.TryAcquire(1) {
		m.mu.Unlock()
		return false
	}
	m.transitionLocked(job, export.StatusProcessing, nil)
	snap := job.Clone()
	r := m.running[job.ID]
	if m.processor != nil {
		r.worker = true
		m.workers.Add(1)
	}
	m.mu.Unlock()

	if m.processor != nil {
		go m.work(r.ctx, snap)
	}
	return true
}

// Pause stops promotion of PENDING jobs. Jobs already processing run to
// completion and new jobs are still accepted.
func (m *Manager) Pause() {
	m.mu.Lock()
	was := m.halted
	m.halted = true
	m.mu.Unlock()
	if !was {
		m.logger.Info().Msg("Queue paused")
	}
}

// Resume restarts promotion after Pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	was := m.halted
	m.halted = false
	m.mu.Unlock()
	if was {
		m.logger.Info().Msg("Queue resumed")
		m.signal()
	}
}

// Paused reports whether promotion is stopped.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.halted
}

func (m *Manager) oldestPendingLocked() *export.Job {
	var oldest *export.Job
	for _, id := range m.order {
		job := m.jobs[id]
		if job.Status != export.StatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	return oldest
}

// work runs the processor for one job and records the outcome. Panics and
// errors never escape; they fail the job. The gate slot is given back only
// once the processor has returned, so a cancelled job still counts against
// MaxConcurrent while its current stage winds down.
func (m *Manager) work(ctx context.Context, job export.Job) {
	defer m.workers.Done()
	defer func() {
		m.gate.Release(1)
		m.signal()
	}()
	logger := m.logger.With().Str("job_id", job.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Job processor panicked")
			m.finish(job.ID, export.StatusFailed, &export.ResultFields{Error: fmt.Sprintf("processor panic: %v", r)})
		}
	}()

	task := Task{
		Job: job,
		Progress: func(progress float64, phase export.Phase, message string) {
			if err := m.UpdateJobProgress(job.ID, progress, phase, message); err != nil {
				logger.Debug().Err(err).Msg("Progress dropped")
			}
		},
		Adjust: func(settings export.Settings, adjustments []string) {
			m.adjust(job.ID, settings, adjustments)
		},
		Attach: func(c Controller) {
			m.attach(job.ID, c)
		},
	}

	res, err := m.processor.Process(ctx, task)
	switch {
	case errors.Is(err, ErrCancelled):
		m.finish(job.ID, export.StatusCancelled, &res)
	case err != nil:
		logger.Warn().Err(err).Msg("Job failed")
		res.Error = err.Error()
		m.finish(job.ID, export.StatusFailed, &res)
	default:
		m.finish(job.ID, export.StatusCompleted, &res)
	}
}

func (m *Manager) finish(id string, status export.Status, res *export.ResultFields) {
	if err := m.UpdateJobStatus(id, status, res); err != nil {
		m.logger.Error().Err(err).Str("job_id", id).Msg("Failed to record job outcome")
	}
}

func (m *Manager) adjust(id string, settings export.Settings, adjustments []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != export.StatusProcessing {
		return
	}
	job.Settings = settings.Clone()
	job.Adjustments = append([]string(nil), adjustments...)
	m.publish(event.JobUpdated, job)
}

// attach stores the run controller and applies a pause requested before the
// run registered it.
func (m *Manager) attach(id string, c Controller) {
	m.mu.Lock()
	r, ok := m.running[id]
	if !ok {
		m.mu.Unlock()
		c.Cancel()
		return
	}
	r.ctrl = c
	paused := m.jobs[id].Paused
	m.mu.Unlock()

	if paused {
		c.Pause()
	}
}

func (m *Manager) publish(name event.Name, job *export.Job) {
	m.events.Publish(context.Background(), name, job.Clone())
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop in the background until ctx is cancelled or
// Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.started {
		return fmt.Errorf("queue manager already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	m.loopDone = make(chan struct{})
	go m.loop(loopCtx, m.loopDone)

	m.started = true
	m.logger.Info().
		Int("max_concurrent", m.cfg.MaxConcurrent).
		Dur("poll_interval", m.cfg.PollInterval).
		Msg("Queue manager started")
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for m.ProcessNextJob() {
		}
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
	}
}

// Stop halts dispatching and waits for running jobs. When ctx expires first
// the running jobs are cancelled and ctx's error is returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	if !m.started {
		m.lifeMu.Unlock()
		return nil
	}
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	loopDone := m.loopDone
	m.started = false
	m.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		<-loopDone
		m.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("Queue manager stopped gracefully")
		return nil
	case <-ctx.Done():
		m.logger.Warn().Msg("Queue manager shutdown timed out, cancelling running jobs")
		m.abort()
		return ctx.Err()
	}
}
