package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecast/framecast/pkg/export"
)

// recorder is a Renderer that remembers every request and can be told to
// block or fail on a given stage.
type recorder struct {
	mu       sync.Mutex
	requests []RenderRequest

	blockOn Stage
	entered chan struct{}
	release chan struct{}

	failOn  Stage
	panicOn Stage
}

func newRecorder() *recorder {
	return &recorder{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *recorder) Render(_ context.Context, req RenderRequest, onProgress func(float64, string)) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if req.Stage == r.blockOn {
		r.entered <- struct{}{}
		<-r.release
	}
	if req.Stage == r.panicOn {
		panic("encoder exploded")
	}
	if req.Stage == r.failOn {
		return "", errors.New("codec unavailable")
	}
	onProgress(50, "half")
	onProgress(100, "done")
	return req.OutputPath, nil
}

func (r *recorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Stage)
	}
	return out
}

func fullSettings() export.Settings {
	return export.Settings{
		Format:            export.FormatMP4,
		Resolution:        export.ResolutionFullHD1080,
		FPS:               30,
		Quality:           export.QualityHigh,
		AudioEnhancements: []export.AudioEnhancement{{Type: "normalize"}},
		VideoFilters:      []export.VideoFilter{{Type: "contrast", Value: 1.2}},
		Watermark:         &export.Watermark{Text: "demo", Position: "bottom-right", Opacity: 0.5},
		Subtitle:          &export.Subtitle{Enabled: true, Source: "captions.srt", Language: "en"},
	}
}

func minimalSettings() export.Settings {
	return export.Settings{
		Format:     export.FormatMP4,
		Resolution: export.ResolutionHD720,
		FPS:        30,
		Quality:    export.QualityMedium,
	}
}

func newTestOrchestrator(t *testing.T, r Renderer) *Orchestrator {
	t.Helper()
	return New(r, WithJobID("job-1"), WithWorkDir(t.TempDir()))
}

func TestActiveStages(t *testing.T) {
	tests := []struct {
		name     string
		settings export.Settings
		want     []Stage
	}{
		{"minimal", minimalSettings(), []Stage{StageComplete}},
		{"full", fullSettings(), stageOrder},
		{
			name: "watermark only",
			settings: func() export.Settings {
				s := minimalSettings()
				s.Watermark = &export.Watermark{Text: "x", Position: "center", Opacity: 1}
				return s
			}(),
			want: []Stage{StageWatermark, StageComplete},
		},
		{
			name: "disabled subtitles skipped",
			settings: func() export.Settings {
				s := minimalSettings()
				s.Subtitle = &export.Subtitle{Enabled: false}
				return s
			}(),
			want: []Stage{StageComplete},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ActiveStages(tt.settings))
		})
	}
}

func TestStagePhase(t *testing.T) {
	assert.Equal(t, export.PhaseProcessingAudio, StageAudioProcessing.Phase())
	assert.Equal(t, export.PhaseProcessingVideo, StageVideoFilters.Phase())
	assert.Equal(t, export.PhaseWatermark, StageWatermark.Phase())
	assert.Equal(t, export.PhaseSubtitles, StageSubtitles.Phase())
	assert.Equal(t, export.PhaseEncoding, StageComplete.Phase())
}

func TestExecute_AllStagesInOrder(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)
	out := filepath.Join(t.TempDir(), "final.mp4")

	res := o.Execute(context.Background(), "in.mp4", out, fullSettings(), nil)

	require.True(t, res.Success, res.Error)
	assert.False(t, res.Cancelled)
	assert.Equal(t, out, res.OutputPath)
	require.Len(t, res.Stages, 5)
	for i, sr := range res.Stages {
		assert.Equal(t, stageOrder[i], sr.Stage)
		assert.True(t, sr.Success)
	}
	assert.Equal(t, stageOrder, rec.stages())
	assert.Equal(t, StateCompleted, o.State())

	// each stage consumes the previous stage's output
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "in.mp4", rec.requests[0].InputPath)
	for i := 1; i < len(rec.requests); i++ {
		assert.Equal(t, rec.requests[i-1].OutputPath, rec.requests[i].InputPath)
		assert.Equal(t, "job-1", rec.requests[i].JobID)
	}
	assert.Equal(t, out, rec.requests[len(rec.requests)-1].OutputPath)
}

func TestExecute_MinimalRunsOnlyComplete(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", minimalSettings(), nil)

	require.True(t, res.Success)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, StageComplete, res.Stages[0].Stage)
	assert.Equal(t, []Stage{StageComplete}, rec.stages())
}

func TestExecute_ProgressNonDecreasing(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)

	var seen []Progress
	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), func(p Progress) {
		seen = append(seen, p)
	})
	require.True(t, res.Success)
	require.NotEmpty(t, seen)

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].OverallProgress, seen[i-1].OverallProgress)
	}
	last := seen[len(seen)-1]
	assert.Equal(t, StageComplete, last.Stage)
	assert.InDelta(t, 100, last.OverallProgress, 0.0001)
}

func TestExecute_ProgressSharedEquallyAcrossStages(t *testing.T) {
	settings := minimalSettings()
	settings.Watermark = &export.Watermark{Text: "demo", Position: "top-left", Opacity: 1}
	require.Equal(t, []Stage{StageWatermark, StageComplete}, ActiveStages(settings))

	o := newTestOrchestrator(t, newRecorder())
	byStage := map[Stage][]float64{}
	res := o.Execute(context.Background(), "in.mp4", "out.mp4", settings, func(p Progress) {
		byStage[p.Stage] = append(byStage[p.Stage], p.OverallProgress)
	})
	require.True(t, res.Success)

	assert.Equal(t, []float64{0, 25, 50}, byStage[StageWatermark])
	require.NotEmpty(t, byStage[StageComplete])
	assert.Equal(t, 50.0, byStage[StageComplete][0])
	assert.Equal(t, 100.0, byStage[StageComplete][len(byStage[StageComplete])-1])
}

func TestExecute_ProgressClamped(t *testing.T) {
	r := RendererFunc(func(_ context.Context, req RenderRequest, onProgress func(float64, string)) (string, error) {
		onProgress(250, "overshoot")
		onProgress(-10, "undershoot")
		return req.OutputPath, nil
	})
	o := newTestOrchestrator(t, r)

	var seen []Progress
	o.Execute(context.Background(), "in", "out", minimalSettings(), func(p Progress) { seen = append(seen, p) })

	for _, p := range seen {
		assert.GreaterOrEqual(t, p.StageProgress, 0.0)
		assert.LessOrEqual(t, p.StageProgress, 100.0)
		assert.LessOrEqual(t, p.OverallProgress, 100.0)
	}
}

func TestExecute_StageFailureStopsPipeline(t *testing.T) {
	rec := newRecorder()
	rec.failOn = StageWatermark
	o := newTestOrchestrator(t, rec)

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)

	assert.False(t, res.Success)
	assert.False(t, res.Cancelled)
	assert.Contains(t, res.Error, "WATERMARK")
	assert.Contains(t, res.Error, "codec unavailable")
	require.Len(t, res.Stages, 3)
	assert.False(t, res.Stages[2].Success)
	assert.Equal(t, "codec unavailable", res.Stages[2].Error)
	assert.Equal(t, []Stage{StageAudioProcessing, StageVideoFilters, StageWatermark}, rec.stages())
	assert.Equal(t, StateFailed, o.State())
}

func TestExecute_RendererPanicBecomesFailure(t *testing.T) {
	rec := newRecorder()
	rec.panicOn = StageComplete
	o := newTestOrchestrator(t, rec)

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", minimalSettings(), nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "encoder exploded")
}

func TestExecute_CancelBeforeStart(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)
	require.True(t, o.Cancel())

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)

	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.Stages)
	assert.Empty(t, rec.stages())
}

func TestExecute_CancelDuringStageFinishesInFlightRender(t *testing.T) {
	rec := newRecorder()
	rec.blockOn = StageVideoFilters
	o := newTestOrchestrator(t, rec)

	done := make(chan Result, 1)
	go func() {
		done <- o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)
	}()

	<-rec.entered
	require.True(t, o.Cancel())
	close(rec.release)

	res := <-done
	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	// the in-flight stage completed, nothing after it ran
	require.Len(t, res.Stages, 2)
	assert.True(t, res.Stages[1].Success)
	assert.Equal(t, []Stage{StageAudioProcessing, StageVideoFilters}, rec.stages())
	assert.Equal(t, StateCancelled, o.State())
}

func TestExecute_PauseAndResume(t *testing.T) {
	rec := newRecorder()
	rec.blockOn = StageAudioProcessing
	o := newTestOrchestrator(t, rec)

	done := make(chan Result, 1)
	go func() {
		done <- o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)
	}()

	<-rec.entered
	require.True(t, o.Pause())
	assert.False(t, o.Pause(), "already paused")
	close(rec.release)

	// the run parks at the next boundary
	require.Never(t, func() bool {
		return len(rec.stages()) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, StatePaused, o.State())

	require.True(t, o.Resume())
	res := <-done
	require.True(t, res.Success)
	assert.Len(t, res.Stages, 5)
}

func TestExecute_CancelWhilePaused(t *testing.T) {
	rec := newRecorder()
	rec.blockOn = StageAudioProcessing
	o := newTestOrchestrator(t, rec)

	done := make(chan Result, 1)
	go func() {
		done <- o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)
	}()

	<-rec.entered
	require.True(t, o.Pause())
	close(rec.release)
	require.True(t, o.Cancel())

	res := <-done
	assert.True(t, res.Cancelled)
	assert.Equal(t, []Stage{StageAudioProcessing}, rec.stages())
	assert.False(t, o.Resume())
}

func TestExecute_ContextCancelledActsAsCancel(t *testing.T) {
	rec := newRecorder()
	rec.blockOn = StageAudioProcessing
	o := newTestOrchestrator(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		done <- o.Execute(ctx, "in.mp4", "out.mp4", fullSettings(), nil)
	}()

	<-rec.entered
	cancel()
	close(rec.release)

	res := <-done
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Stages, 1)
}

func TestExecute_RemovesWorkDir(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)

	var removed []string
	o.removeAll = func(path string) error {
		removed = append(removed, path)
		return nil
	}

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)
	require.True(t, res.Success)
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Dir(res.Stages[0].OutputPath), removed[0])

	require.NoError(t, o.Cleanup())
	assert.Len(t, removed, 1, "cleanup is idempotent")
}

func TestExecute_RemovesWorkDirAfterFailure(t *testing.T) {
	rec := newRecorder()
	rec.failOn = StageSubtitles
	o := newTestOrchestrator(t, rec)

	var removed int
	o.removeAll = func(string) error {
		removed++
		return nil
	}

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)
	require.False(t, res.Success)
	assert.Equal(t, 1, removed)
}

func TestExecute_WorkDirFailure(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)
	o.mkdirTemp = func(string, string) (string, error) {
		return "", errors.New("disk full")
	}

	res := o.Execute(context.Background(), "in.mp4", "out.mp4", fullSettings(), nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "disk full")
	assert.Empty(t, rec.stages())
}

func TestExecute_OnlyOnce(t *testing.T) {
	rec := newRecorder()
	o := newTestOrchestrator(t, rec)

	first := o.Execute(context.Background(), "in.mp4", "out.mp4", minimalSettings(), nil)
	require.True(t, first.Success)

	second := o.Execute(context.Background(), "in.mp4", "out.mp4", minimalSettings(), nil)
	assert.False(t, second.Success)
	assert.Equal(t, ErrAlreadyExecuted.Error(), second.Error)
	assert.Len(t, rec.stages(), 1)
}

func TestControlsAfterCompletion(t *testing.T) {
	o := newTestOrchestrator(t, newRecorder())
	o.Execute(context.Background(), "in", "out", minimalSettings(), nil)

	assert.False(t, o.Pause())
	assert.False(t, o.Resume())
	assert.False(t, o.Cancel())
}

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Paused", StatePaused.String())
	assert.Equal(t, "Failed", StateFailed.String())
}
