// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/framecast/framecast/pkg/export"
)

// Stage is one step of the export pipeline.
type Stage string

const (
	StageAudioProcessing Stage = "AUDIO_PROCESSING"
	StageVideoFilters    Stage = "VIDEO_FILTERS"
	StageWatermark       Stage = "WATERMARK"
	StageSubtitles       Stage = "SUBTITLES"
	StageComplete        Stage = "COMPLETE"
)

// stageOrder is the fixed execution order; inactive stages are skipped.
var stageOrder = []Stage{
	StageAudioProcessing,
	StageVideoFilters,
	StageWatermark,
	StageSubtitles,
	StageComplete,
}

// Active reports whether the stage runs for settings. COMPLETE always runs.
func (s Stage) Active(settings export.Settings) bool {
	switch s {
	case StageAudioProcessing:
		return settings.HasAudioEnhancements()
	case StageVideoFilters:
		return settings.HasVideoFilters()
	case StageWatermark:
		return settings.HasWatermark()
	case StageSubtitles:
		return settings.HasSubtitles()
	case StageComplete:
		return true
	default:
		return false
	}
}

// Phase maps the stage to the job phase reported to clients.
func (s Stage) Phase() export.Phase {
	switch s {
	case StageAudioProcessing:
		return export.PhaseProcessingAudio
	case StageVideoFilters:
		return export.PhaseProcessingVideo
	case StageWatermark:
		return export.PhaseWatermark
	case StageSubtitles:
		return export.PhaseSubtitles
	default:
		return export.PhaseEncoding
	}
}

// ActiveStages returns the stages that run for settings, in execution order.
func ActiveStages(settings export.Settings) []Stage {
	out := make([]Stage, 0, len(stageOrder))
	for _, s := range stageOrder {
		if s.Active(settings) {
			out = append(out, s)
		}
	}
	return out
}

// Progress is reported after every state change of a running pipeline.
type Progress struct {
	Stage           Stage   `json:"stage"`
	StageProgress   float64 `json:"stage_progress"`
	OverallProgress float64 `json:"overall_progress"`
	Message         string  `json:"message,omitempty"`
	CurrentFile     string  `json:"current_file,omitempty"`
}

// StageResult records the outcome of one executed stage.
type StageResult struct {
	Stage      Stage         `json:"stage"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Result is returned by Execute. Cancelled results have Success=false and no
// Error.
type Result struct {
	Success       bool          `json:"success"`
	OutputPath    string        `json:"output_path,omitempty"`
	Stages        []StageResult `json:"stages"`
	TotalDuration time.Duration `json:"total_duration"`
	Cancelled     bool          `json:"cancelled,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// RenderRequest is one renderer invocation.
type RenderRequest struct {
	JobID      string          `json:"job_id,omitempty"`
	Stage      Stage           `json:"stage"`
	InputPath  string          `json:"input_path"`
	OutputPath string          `json:"output_path"`
	Settings   export.Settings `json:"settings"`
}

// Renderer performs the media work for one stage. It returns the path it
// actually wrote, which becomes the next stage's input. onProgress may be
// called with stage-local percentages in [0,100].
type Renderer interface {
	Render(ctx context.Context, req RenderRequest, onProgress func(percent float64, message string)) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, req RenderRequest, onProgress func(percent float64, message string)) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, req RenderRequest, onProgress func(float64, string)) (string, error) {
	return f(ctx, req, onProgress)
}

// StageError wraps a renderer failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the renderer error.
func (e *StageError) Unwrap() error { return e.Err }
