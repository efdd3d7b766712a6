// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package exporter turns a promoted queue job into a rendered file: it
// optimizes the settings for the current hardware, consults the render
// cache and runs the stage pipeline.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/pipeline"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/queue"
	"github.com/framecast/framecast/pkg/rendercache"
)

// ErrNoSource is returned for a timeline without a source media file.
var ErrNoSource = errors.New("timeline has no source media")

// Config holds the pipeline.* settings.
type Config struct {
	WorkDir       string
	OutputDir     string
	PublicBaseURL string
	Strategy      quality.Strategy
}

// Timeline is the part of a job's timeline data the exporter reads.
type Timeline struct {
	Source   string  `json:"source"`
	Duration float64 `json:"duration,omitempty"`
}

// ParseTimeline decodes timeline data.
func ParseTimeline(raw []byte) (Timeline, error) {
	var tl Timeline
	if len(raw) == 0 {
		return tl, ErrNoSource
	}
	if err := json.Unmarshal(raw, &tl); err != nil {
		return tl, fmt.Errorf("decode timeline: %w", err)
	}
	if tl.Source == "" {
		return tl, ErrNoSource
	}
	return tl, nil
}

// Service is the queue.Processor behind every export.
type Service struct {
	cfg       Config
	renderer  pipeline.Renderer
	optimizer *quality.Optimizer
	cache     *rendercache.Cache
	logger    zerolog.Logger
}

// New creates the service. cache may be nil to disable caching.
func New(cfg Config, renderer pipeline.Renderer, optimizer *quality.Optimizer, cache *rendercache.Cache, logger zerolog.Logger) *Service {
	if cfg.Strategy == "" {
		cfg.Strategy = quality.StrategyAdaptive
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(os.TempDir(), "framecast", "exports")
	}
	if optimizer == nil {
		optimizer = quality.NewOptimizer(nil)
	}
	return &Service{
		cfg:       cfg,
		renderer:  renderer,
		optimizer: optimizer,
		cache:     cache,
		logger:    logger.With().Str("component", "exporter").Logger(),
	}
}

// Queue is the part of queue.Manager Submit needs.
type Queue interface {
	Submit(req export.Request) export.Job
}

// Submit validates req against the current hardware and queues it. Invalid
// requests return a *quality.ValidationError and create no job.
func (s *Service) Submit(ctx context.Context, q Queue, req export.Request) (export.Job, quality.Validation, error) {
	if err := req.Validate(); err != nil {
		var fe export.FieldErrors
		if errors.As(err, &fe) {
			v := quality.Validation{Issues: fe.Messages(), Recommendations: []string{}}
			return export.Job{}, v, &quality.ValidationError{Issues: v.Issues}
		}
		return export.Job{}, quality.Validation{}, err
	}
	v, err := s.optimizer.Validate(ctx, req.Settings)
	if err != nil {
		return export.Job{}, v, err
	}
	if err := v.Err(); err != nil {
		return export.Job{}, v, err
	}
	return q.Submit(req), v, nil
}

// Process implements queue.Processor.
func (s *Service) Process(ctx context.Context, task queue.Task) (export.ResultFields, error) {
	job := task.Job
	logger := s.logger.With().Str("job_id", job.ID).Logger()
	task.Progress(0, export.PhaseInitializing, "preparing export")

	tl, err := ParseTimeline(job.TimelineData)
	if err != nil {
		return export.ResultFields{}, err
	}

	opt, err := s.optimizer.Optimize(ctx, job.Settings, s.cfg.Strategy)
	if err != nil {
		return export.ResultFields{}, err
	}
	if opt.Changed() {
		logger.Info().Strs("adjustments", opt.Adjustments).Str("strategy", string(opt.Strategy)).Msg("Settings adjusted for hardware")
		task.Adjust(opt.Settings, opt.Adjustments)
	}
	settings := opt.Settings

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return export.ResultFields{}, fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(s.cfg.OutputDir, job.ID+settings.Format.Extension())

	entry, cached, err := s.render(ctx, task, tl, settings, outputPath)
	if err != nil {
		return export.ResultFields{}, err
	}

	if cached {
		if err := copyFile(entry.OutputPath, outputPath); err != nil {
			logger.Warn().Err(err).Str("source", entry.OutputPath).Msg("Cached render unreadable, rendering again")
			cached = false
			if _, err := s.runPipeline(ctx, task, tl, settings, outputPath); err != nil {
				return export.ResultFields{}, err
			}
		} else {
			logger.Info().Str("source", entry.OutputPath).Msg("Served export from render cache")
		}
	}

	task.Progress(100, export.PhaseFinalizing, "export ready")

	res := export.ResultFields{
		OutputPath: outputPath,
		OutputURL:  s.publicURL(outputPath),
		Duration:   tl.Duration,
		CacheHit:   cached,
	}
	if info, err := os.Stat(outputPath); err == nil {
		res.FileSize = info.Size()
	} else {
		logger.Warn().Err(err).Msg("Cannot stat export output")
	}
	return res, nil
}

// render produces the export, through the cache when one is configured.
// cached reports that entry.OutputPath belongs to another render and must be
// copied.
func (s *Service) render(ctx context.Context, task queue.Task, tl Timeline, settings export.Settings, outputPath string) (rendercache.Entry, bool, error) {
	if s.cache == nil {
		entry, err := s.runPipeline(ctx, task, tl, settings, outputPath)
		return entry, false, err
	}

	inputHash, err := rendercache.HashFile(tl.Source)
	if err != nil {
		return rendercache.Entry{}, false, err
	}
	key, settingsHash, err := rendercache.GenerateKey(inputHash, settings)
	if err != nil {
		return rendercache.Entry{}, false, err
	}

	ran := false
	entry, _, err := s.cache.Do(ctx, key, func(ctx context.Context) (rendercache.Entry, error) {
		ran = true
		e, err := s.runPipeline(ctx, task, tl, settings, outputPath)
		if err != nil {
			return e, err
		}
		e.InputHash = inputHash
		e.SettingsHash = settingsHash
		return e, nil
	})
	switch {
	case err == nil:
		return entry, entry.OutputPath != outputPath, nil
	case ctx.Err() != nil:
		return rendercache.Entry{}, false, queue.ErrCancelled
	case !ran:
		// the shared render belonged to another job and did not finish
		s.logger.Debug().Err(err).Str("job_id", task.Job.ID).Msg("Shared render failed, rendering alone")
		entry, err := s.runPipeline(ctx, task, tl, settings, outputPath)
		return entry, false, err
	default:
		return rendercache.Entry{}, false, err
	}
}

func (s *Service) runPipeline(ctx context.Context, task queue.Task, tl Timeline, settings export.Settings, outputPath string) (rendercache.Entry, error) {
	orch := pipeline.New(s.renderer,
		pipeline.WithJobID(task.Job.ID),
		pipeline.WithWorkDir(s.cfg.WorkDir),
		pipeline.WithLogger(s.logger),
	)
	task.Attach(orch)
	stop := context.AfterFunc(ctx, func() { orch.Cancel() })
	defer stop()

	res := orch.Execute(ctx, tl.Source, outputPath, settings, func(p pipeline.Progress) {
		task.Progress(p.OverallProgress, p.Stage.Phase(), p.Message)
	})
	switch {
	case res.Cancelled:
		return rendercache.Entry{}, queue.ErrCancelled
	case !res.Success:
		return rendercache.Entry{}, errors.New(res.Error)
	}

	entry := rendercache.Entry{
		OutputPath: res.OutputPath,
		CreatedAt:  time.Now().UTC(),
		Duration:   tl.Duration,
	}
	if info, err := os.Stat(res.OutputPath); err == nil {
		entry.FileSize = info.Size()
	}
	return entry, nil
}

func (s *Service) publicURL(outputPath string) string {
	if s.cfg.PublicBaseURL == "" {
		return ""
	}
	u, err := url.JoinPath(s.cfg.PublicBaseURL, filepath.Base(outputPath))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Invalid public base url")
		return ""
	}
	return u
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
