package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/export"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingPublisher captures events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, name event.Name, job export.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Event{Name: name, Job: job})
}

func (p *recordingPublisher) count(name event.Name) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type fakeController struct {
	pauses, resumes, cancels atomic.Int32
}

func (c *fakeController) Pause() bool {
	c.pauses.Add(1)
	return true
}

func (c *fakeController) Resume() bool {
	c.resumes.Add(1)
	return true
}

func (c *fakeController) Cancel() bool {
	c.cancels.Add(1)
	return true
}

func settings720() export.Settings {
	return export.Settings{
		Format:     export.FormatMP4,
		Resolution: export.ResolutionHD720,
		Quality:    export.QualityHigh,
		FPS:        30,
	}
}

func newTestManager(t *testing.T, maxConcurrent int, opts ...Option) (*Manager, *recordingPublisher, *fakeClock) {
	t.Helper()
	pub := &recordingPublisher{}
	clock := newFakeClock()
	opts = append([]Option{WithEvents(pub), WithClock(clock.Now)}, opts...)
	m := NewManager(Config{MaxConcurrent: maxConcurrent, PollInterval: 10 * time.Millisecond, MaxAttempts: 3}, opts...)
	return m, pub, clock
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{})
	assert.Equal(t, DefaultConfig(), m.Config())
}

func TestAddJob(t *testing.T) {
	m, pub, clock := newTestManager(t, 2)

	job := m.AddJob("u1", "p1", "t1", settings720(), []byte(`{"tracks":[]}`))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, export.StatusPending, job.Status)
	assert.Zero(t, job.Progress)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	assert.Equal(t, 1, job.Attempt)
	assert.JSONEq(t, `{"tracks":[]}`, string(job.TimelineData))
	assert.Equal(t, 1, pub.count(event.JobAdded))

	other := m.AddJob("u1", "p1", "t1", settings720(), nil)
	assert.NotEqual(t, job.ID, other.ID)
}

func TestLifecycleScenario(t *testing.T) {
	m, pub, clock := newTestManager(t, 2)
	job := m.AddJob("u1", "p1", "t1", settings720(), nil)

	clock.Advance(time.Second)
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
	require.NoError(t, m.UpdateJobProgress(job.ID, 50, export.PhaseEncoding, ""))

	clock.Advance(25 * time.Second)
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusCompleted, &export.ResultFields{
		OutputURL: "https://cdn.example.com/exports/out.mp4",
		FileSize:  2621440,
		Duration:  25.0,
	}))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, 50.0, got.Progress)
	assert.Equal(t, export.PhaseEncoding, got.CurrentPhase)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.FailedAt)
	assert.Nil(t, got.CancelledAt)
	assert.Equal(t, "https://cdn.example.com/exports/out.mp4", got.OutputURL)
	assert.Equal(t, int64(2621440), got.FileSize)
	assert.Equal(t, 25.0, got.Duration)

	assert.Equal(t, 1, pub.count(event.JobStart))
	assert.Equal(t, 1, pub.count(event.JobProgress))
	assert.Equal(t, 1, pub.count(event.JobCompleted))
	assert.Equal(t, 2, pub.count(event.JobUpdated))
}

func TestUpdateJobStatus_TerminalIsNoop(t *testing.T) {
	m, pub, _ := newTestManager(t, 2)
	job := m.AddJob("u1", "p1", "t1", settings720(), nil)
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusCompleted, &export.ResultFields{OutputURL: "first"}))

	for _, st := range []export.Status{export.StatusCompleted, export.StatusFailed, export.StatusCancelled, export.StatusProcessing} {
		require.NoError(t, m.UpdateJobStatus(job.ID, st, &export.ResultFields{OutputURL: "second", Error: "late"}))
	}

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, "first", got.OutputURL)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, pub.count(event.JobCompleted))
	assert.Zero(t, pub.count(event.JobFailed))
}

func TestUpdateJobStatus_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name     string
		prepare  []export.Status
		to       export.Status
		expected error
	}{
		{"pending to completed", nil, export.StatusCompleted, ErrInvalidTransition},
		{"pending to failed", nil, export.StatusFailed, ErrInvalidTransition},
		{"pending to pending", nil, export.StatusPending, ErrInvalidTransition},
		{"processing to processing", []export.Status{export.StatusProcessing}, export.StatusProcessing, ErrInvalidTransition},
		{"processing to pending", []export.Status{export.StatusProcessing}, export.StatusPending, ErrInvalidTransition},
		{"unknown status", nil, export.Status("PAUSED"), ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestManager(t, 2)
			job := m.AddJob("u", "p", "t", settings720(), nil)
			for _, st := range tt.prepare {
				require.NoError(t, m.UpdateJobStatus(job.ID, st, nil))
			}
			before, _ := m.GetJob(job.ID)

			err := m.UpdateJobStatus(job.ID, tt.to, nil)
			require.ErrorIs(t, err, tt.expected)

			after, _ := m.GetJob(job.ID)
			assert.Equal(t, before, after)
		})
	}

	t.Run("unknown job", func(t *testing.T) {
		m, _, _ := newTestManager(t, 2)
		require.ErrorIs(t, m.UpdateJobStatus("missing", export.StatusProcessing, nil), ErrJobNotFound)
	})
}

func TestUpdateJobStatus_TimestampMatchesTerminalStatus(t *testing.T) {
	for _, st := range []export.Status{export.StatusCompleted, export.StatusFailed, export.StatusCancelled} {
		t.Run(string(st), func(t *testing.T) {
			m, _, _ := newTestManager(t, 2)
			job := m.AddJob("u", "p", "t", settings720(), nil)
			require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
			require.NoError(t, m.UpdateJobStatus(job.ID, st, nil))

			got, _ := m.GetJob(job.ID)
			assert.Equal(t, st == export.StatusCompleted, got.CompletedAt != nil)
			assert.Equal(t, st == export.StatusFailed, got.FailedAt != nil)
			assert.Equal(t, st == export.StatusCancelled, got.CancelledAt != nil)
			assert.Equal(t, got.FinishedAt(), func() *time.Time {
				switch st {
				case export.StatusCompleted:
					return got.CompletedAt
				case export.StatusFailed:
					return got.FailedAt
				default:
					return got.CancelledAt
				}
			}())
		})
	}
}

func TestUpdateJobProgress(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	job := m.AddJob("u", "p", "t", settings720(), nil)

	err := m.UpdateJobProgress(job.ID, 10, export.PhaseEncoding, "")
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))

	steps := []struct {
		progress float64
		phase    export.Phase
		message  string
		want     float64
	}{
		{40, export.PhaseProcessingAudio, "audio", 40},
		{20, export.PhaseProcessingVideo, "video", 40},
		{150, export.PhaseEncoding, "", 100},
		{-5, "", "", 100},
	}
	for _, s := range steps {
		require.NoError(t, m.UpdateJobProgress(job.ID, s.progress, s.phase, s.message))
		got, _ := m.GetJob(job.ID)
		assert.Equal(t, s.want, got.Progress)
	}

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, export.PhaseEncoding, got.CurrentPhase)
	assert.Equal(t, "video", got.Message)

	require.ErrorIs(t, m.UpdateJobProgress("missing", 1, "", ""), ErrJobNotFound)
}

func TestCancelJob(t *testing.T) {
	m, pub, _ := newTestManager(t, 2)

	pending := m.AddJob("u", "p", "t", settings720(), nil)
	assert.True(t, m.CancelJob(pending.ID))
	got, _ := m.GetJob(pending.ID)
	assert.Equal(t, export.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	processing := m.AddJob("u", "p", "t", settings720(), nil)
	require.NoError(t, m.UpdateJobStatus(processing.ID, export.StatusProcessing, nil))
	assert.True(t, m.CancelJob(processing.ID))

	done := m.AddJob("u", "p", "t", settings720(), nil)
	require.NoError(t, m.UpdateJobStatus(done.ID, export.StatusProcessing, nil))
	require.NoError(t, m.UpdateJobStatus(done.ID, export.StatusCompleted, nil))
	before, _ := m.GetJob(done.ID)
	assert.False(t, m.CancelJob(done.ID))
	after, _ := m.GetJob(done.ID)
	assert.Equal(t, before, after)

	assert.False(t, m.CancelJob(pending.ID), "already cancelled")
	assert.False(t, m.CancelJob("missing"))
	assert.Equal(t, 2, pub.count(event.JobCancelled))
}

func TestCancelJob_FreesSlot(t *testing.T) {
	m, _, _ := newTestManager(t, 1)
	a := m.AddJob("u", "p", "t", settings720(), nil)
	b := m.AddJob("u", "p", "t", settings720(), nil)

	require.True(t, m.ProcessNextJob())
	require.False(t, m.ProcessNextJob())
	require.True(t, m.CancelJob(a.ID))
	require.True(t, m.ProcessNextJob())

	got, _ := m.GetJob(b.ID)
	assert.Equal(t, export.StatusProcessing, got.Status)
}

func TestProcessNextJob_ConcurrencyCapAndFIFO(t *testing.T) {
	m, _, clock := newTestManager(t, 2)
	var ids []string
	for range 3 {
		ids = append(ids, m.AddJob("u", "p", "t", settings720(), nil).ID)
		clock.Advance(time.Millisecond)
	}

	assert.True(t, m.ProcessNextJob())
	assert.True(t, m.ProcessNextJob())
	assert.False(t, m.ProcessNextJob())

	status := m.QueueStatus()
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.Processing)
	assert.Equal(t, 1, status.Pending)

	third, _ := m.GetJob(ids[2])
	assert.Equal(t, export.StatusPending, third.Status)

	err := m.UpdateJobStatus(ids[2], export.StatusProcessing, nil)
	require.ErrorIs(t, err, ErrConcurrencyLimit)

	require.NoError(t, m.UpdateJobStatus(ids[0], export.StatusCompleted, nil))
	assert.True(t, m.ProcessNextJob())
	third, _ = m.GetJob(ids[2])
	assert.Equal(t, export.StatusProcessing, third.Status)
	assert.False(t, m.ProcessNextJob())
}

func TestProcessNextJob_EmptyQueue(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	assert.False(t, m.ProcessNextJob())
}

func TestStatistics(t *testing.T) {
	m, _, clock := newTestManager(t, 4)

	empty := m.Statistics()
	assert.Zero(t, empty.AverageDuration)
	assert.Zero(t, empty.TotalDuration)

	finish := func(status export.Status, took time.Duration) {
		job := m.AddJob("u", "p", "t", settings720(), nil)
		require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
		clock.Advance(took)
		require.NoError(t, m.UpdateJobStatus(job.ID, status, nil))
	}
	finish(export.StatusCompleted, 10*time.Second)
	finish(export.StatusCompleted, 20*time.Second)
	finish(export.StatusFailed, time.Hour)
	m.AddJob("u", "p", "t", settings720(), nil)

	st := m.Statistics()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 15*time.Second, st.AverageDuration)
	assert.Equal(t, 30*time.Second, st.TotalDuration)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 15.0, decoded["average_duration_seconds"])
	assert.Equal(t, 30.0, decoded["total_duration_seconds"])
	assert.Equal(t, 4.0, decoded["total"])
}

func TestRetryJob(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	job := m.AddJob("u1", "p1", "t1", settings720(), []byte(`{}`))

	_, err := m.RetryJob(job.ID)
	require.ErrorIs(t, err, ErrNotRetryable)

	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusFailed, &export.ResultFields{Error: "codec"}))

	retry, err := m.RetryJob(job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, retry.ID)
	assert.Equal(t, export.StatusPending, retry.Status)
	assert.Equal(t, job.ID, retry.RetryOf)
	assert.Equal(t, 2, retry.Attempt)
	assert.Equal(t, "u1", retry.UserID)
	assert.Empty(t, retry.Error)

	original, _ := m.GetJob(job.ID)
	assert.Equal(t, export.StatusFailed, original.Status)

	_, err = m.RetryJob(job.ID)
	require.ErrorIs(t, err, ErrNotRetryable, "a job is retried once")

	_, err = m.RetryJob("missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRetryJob_AttemptLimit(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	job := m.AddJob("u", "p", "t", settings720(), nil)

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		require.Equal(t, attempt, job.Attempt)
		require.True(t, m.CancelJob(job.ID))
		if attempt == 3 {
			break
		}
		job, err = m.RetryJob(job.ID)
		require.NoError(t, err)
	}

	_, err = m.RetryJob(job.ID)
	require.ErrorIs(t, err, ErrNotRetryable)
}

func TestListJobs(t *testing.T) {
	m, _, clock := newTestManager(t, 2)
	a := m.AddJob("alice", "film", "t", settings720(), nil)
	clock.Advance(time.Second)
	b := m.AddJob("bob", "film", "t", settings720(), nil)
	clock.Advance(time.Second)
	c := m.AddJob("alice", "ad", "t", settings720(), nil)
	require.True(t, m.CancelJob(c.ID))

	ids := func(jobs []export.Job) []string {
		out := make([]string, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, j.ID)
		}
		return out
	}

	assert.Equal(t, []string{a.ID, c.ID}, ids(m.GetUserJobs("alice")))
	assert.Equal(t, []string{a.ID, b.ID}, ids(m.GetProjectJobs("film")))
	assert.Equal(t, []string{c.ID}, ids(m.ListJobs(Filter{Status: export.StatusCancelled})))
	assert.Equal(t, []string{a.ID}, ids(m.ListJobs(Filter{Limit: 1})))
	assert.Empty(t, m.GetUserJobs("nobody"))
	assert.Len(t, m.ListJobs(Filter{}), 3)
}

func TestGetJob_ReturnsSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	job := m.AddJob("u", "p", "t", settings720(), nil)

	snap, err := m.GetJob(job.ID)
	require.NoError(t, err)
	snap.Status = export.StatusCompleted
	snap.Settings.FPS = 120

	again, _ := m.GetJob(job.ID)
	assert.Equal(t, export.StatusPending, again.Status)
	assert.Equal(t, 30, again.Settings.FPS)

	_, err = m.GetJob("missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestPauseResumeJob(t *testing.T) {
	m, pub, _ := newTestManager(t, 2)
	job := m.AddJob("u", "p", "t", settings720(), nil)

	require.ErrorIs(t, m.PauseJob(job.ID), ErrInvalidState)
	require.ErrorIs(t, m.PauseJob("missing"), ErrJobNotFound)

	require.True(t, m.ProcessNextJob())
	ctrl := &fakeController{}
	m.attach(job.ID, ctrl)

	require.NoError(t, m.PauseJob(job.ID))
	require.NoError(t, m.PauseJob(job.ID))
	got, _ := m.GetJob(job.ID)
	assert.True(t, got.Paused)

	require.NoError(t, m.ResumeJob(job.ID))
	got, _ = m.GetJob(job.ID)
	assert.False(t, got.Paused)

	assert.Equal(t, int32(1), ctrl.pauses.Load())
	assert.Equal(t, int32(1), ctrl.resumes.Load())
	assert.GreaterOrEqual(t, pub.count(event.JobUpdated), 3)

	require.True(t, m.CancelJob(job.ID))
	assert.Equal(t, int32(1), ctrl.cancels.Load())
}

func TestAttach_AppliesEarlierPause(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	job := m.AddJob("u", "p", "t", settings720(), nil)
	require.True(t, m.ProcessNextJob())
	require.NoError(t, m.PauseJob(job.ID))

	ctrl := &fakeController{}
	m.attach(job.ID, ctrl)
	assert.Equal(t, int32(1), ctrl.pauses.Load())
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
}

func waitStatus(t *testing.T, m *Manager, id string, want export.Status) export.Job {
	t.Helper()
	var job export.Job
	require.Eventually(t, func() bool {
		job, _ = m.GetJob(id)
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestDispatch_ProcessorCompletesJob(t *testing.T) {
	proc := ProcessorFunc(func(_ context.Context, task Task) (export.ResultFields, error) {
		task.Progress(50, export.PhaseEncoding, "encoding")
		adjusted := task.Job.Settings
		adjusted.FPS = 24
		task.Adjust(adjusted, []string{"fps 30 -> 24"})
		return export.ResultFields{OutputPath: "/exports/" + task.Job.ID + ".mp4", FileSize: 42}, nil
	})
	m, pub, _ := newTestManager(t, 2, WithProcessor(proc))
	startManager(t, m)

	job := m.AddJob("u", "p", "t", settings720(), nil)
	done := waitStatus(t, m, job.ID, export.StatusCompleted)

	assert.Equal(t, "/exports/"+job.ID+".mp4", done.OutputPath)
	assert.Equal(t, int64(42), done.FileSize)
	assert.Equal(t, 50.0, done.Progress)
	assert.Equal(t, 24, done.Settings.FPS)
	assert.Equal(t, []string{"fps 30 -> 24"}, done.Adjustments)
	assert.Equal(t, 1, pub.count(event.JobStart))
	assert.Equal(t, 1, pub.count(event.JobCompleted))
}

func TestDispatch_FailuresBecomeFailed(t *testing.T) {
	tests := []struct {
		name    string
		proc    ProcessorFunc
		wantErr string
	}{
		{
			name: "error",
			proc: func(context.Context, Task) (export.ResultFields, error) {
				return export.ResultFields{}, errors.New("stage WATERMARK failed: font missing")
			},
			wantErr: "stage WATERMARK failed: font missing",
		},
		{
			name: "panic",
			proc: func(context.Context, Task) (export.ResultFields, error) {
				panic("nil renderer")
			},
			wantErr: "processor panic: nil renderer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestManager(t, 2, WithProcessor(tt.proc))
			startManager(t, m)

			job := m.AddJob("u", "p", "t", settings720(), nil)
			failed := waitStatus(t, m, job.ID, export.StatusFailed)
			assert.Equal(t, tt.wantErr, failed.Error)
			assert.NotNil(t, failed.FailedAt)

			assert.Zero(t, m.Statistics().TotalDuration)
		})
	}
}

func TestDispatch_ProcessorCancelled(t *testing.T) {
	proc := ProcessorFunc(func(context.Context, Task) (export.ResultFields, error) {
		return export.ResultFields{}, ErrCancelled
	})
	m, _, _ := newTestManager(t, 2, WithProcessor(proc))
	startManager(t, m)

	job := m.AddJob("u", "p", "t", settings720(), nil)
	waitStatus(t, m, job.ID, export.StatusCancelled)
}

func TestDispatch_NeverExceedsMaxConcurrent(t *testing.T) {
	var (
		active   atomic.Int32
		peak     atomic.Int32
		release  = make(chan struct{})
		observed atomic.Bool
	)
	var m *Manager
	proc := ProcessorFunc(func(context.Context, Task) (export.ResultFields, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if m.QueueStatus().Processing > 2 {
			observed.Store(true)
		}
		<-release
		active.Add(-1)
		return export.ResultFields{}, nil
	})
	m, _, _ = newTestManager(t, 2, WithProcessor(proc))
	startManager(t, m)

	var ids []string
	for range 6 {
		ids = append(ids, m.AddJob("u", "p", "t", settings720(), nil).ID)
	}

	require.Eventually(t, func() bool { return active.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	st := m.QueueStatus()
	assert.Equal(t, 2, st.Processing)
	assert.Equal(t, 4, st.Pending)

	close(release)
	for _, id := range ids {
		waitStatus(t, m, id, export.StatusCompleted)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.False(t, observed.Load())
}

func TestDispatch_CancelRunningJob(t *testing.T) {
	ctrl := &fakeController{}
	stopped := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, task Task) (export.ResultFields, error) {
		task.Attach(ctrl)
		<-ctx.Done()
		close(stopped)
		return export.ResultFields{}, ErrCancelled
	})
	m, pub, _ := newTestManager(t, 2, WithProcessor(proc))
	startManager(t, m)

	job := m.AddJob("u", "p", "t", settings720(), nil)
	waitStatus(t, m, job.ID, export.StatusProcessing)
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		r, ok := m.running[job.ID]
		return ok && r.ctrl != nil
	}, time.Second, 5*time.Millisecond)

	require.True(t, m.CancelJob(job.ID))
	<-stopped

	got := waitStatus(t, m, job.ID, export.StatusCancelled)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, int32(1), ctrl.cancels.Load())
	assert.Equal(t, 1, pub.count(event.JobCancelled))
}

func TestDispatch_CancelledRunHoldsSlotUntilProcessorReturns(t *testing.T) {
	var active, peak atomic.Int32
	started := make(chan string, 2)
	stageDone := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, task Task) (export.ResultFields, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		started <- task.Job.ID
		// the in-flight stage ignores cancellation until it finishes
		<-stageDone
		if ctx.Err() != nil {
			return export.ResultFields{}, ErrCancelled
		}
		return export.ResultFields{}, nil
	})
	m, _, _ := newTestManager(t, 1, WithProcessor(proc))
	startManager(t, m)

	a := m.AddJob("u", "p", "t", settings720(), nil)
	require.Equal(t, a.ID, <-started)
	require.True(t, m.CancelJob(a.ID))
	assert.Zero(t, m.QueueStatus().Processing, "status count drops at once")

	b := m.AddJob("u", "p", "t", settings720(), nil)
	assert.Never(t, func() bool {
		got, _ := m.GetJob(b.ID)
		return got.Status != export.StatusPending
	}, 100*time.Millisecond, 5*time.Millisecond, "next job waits for the cancelled run to return")

	close(stageDone)
	waitStatus(t, m, b.ID, export.StatusCompleted)
	got, _ := m.GetJob(a.ID)
	assert.Equal(t, export.StatusCancelled, got.Status)
	assert.Equal(t, int32(1), peak.Load())
}

func TestPauseResume_StopsPromotion(t *testing.T) {
	release := make(chan struct{})
	proc := ProcessorFunc(func(context.Context, Task) (export.ResultFields, error) {
		<-release
		return export.ResultFields{}, nil
	})
	m, _, _ := newTestManager(t, 2, WithProcessor(proc))
	startManager(t, m)

	running := m.AddJob("u", "p", "t", settings720(), nil)
	waitStatus(t, m, running.ID, export.StatusProcessing)

	m.Pause()
	m.Pause()
	assert.True(t, m.Paused())
	assert.True(t, m.QueueStatus().Paused)

	queued := m.AddJob("u", "p", "t", settings720(), nil)
	assert.False(t, m.ProcessNextJob())
	assert.Never(t, func() bool {
		got, _ := m.GetJob(queued.ID)
		return got.Status != export.StatusPending
	}, 60*time.Millisecond, 5*time.Millisecond, "paused queue keeps new jobs pending")

	close(release)
	waitStatus(t, m, running.ID, export.StatusCompleted)

	m.Resume()
	assert.False(t, m.Paused())
	waitStatus(t, m, queued.ID, export.StatusCompleted)
}

func TestStartStop(t *testing.T) {
	m, _, _ := newTestManager(t, 2)
	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx), "stopping twice is fine")
}

func TestStop_TimeoutCancelsRunningJobs(t *testing.T) {
	proc := ProcessorFunc(func(ctx context.Context, _ Task) (export.ResultFields, error) {
		<-ctx.Done()
		return export.ResultFields{}, ErrCancelled
	})
	m, _, _ := newTestManager(t, 2, WithProcessor(proc))
	require.NoError(t, m.Start(context.Background()))

	job := m.AddJob("u", "p", "t", settings720(), nil)
	waitStatus(t, m, job.ID, export.StatusProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	waitStatus(t, m, job.ID, export.StatusCancelled)
}

func TestDispatch_WithoutProcessorOnlyPromotes(t *testing.T) {
	m, pub, _ := newTestManager(t, 2)
	startManager(t, m)

	job := m.AddJob("u", "p", "t", settings720(), nil)
	got := waitStatus(t, m, job.ID, export.StatusProcessing)
	assert.Equal(t, export.PhaseInitializing, got.CurrentPhase)
	assert.Equal(t, 1, pub.count(event.JobStart))

	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusCompleted, nil))
}

func TestManager_PublishesThroughBus(t *testing.T) {
	bus := event.New()
	var (
		mu    sync.Mutex
		names []event.Name
	)
	bus.Subscribe(func(_ context.Context, e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, e.Name)
	})
	m := NewManager(Config{MaxConcurrent: 1}, WithEvents(bus))

	job := m.AddJob("u", "p", "t", settings720(), nil)
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusProcessing, nil))
	require.NoError(t, m.UpdateJobProgress(job.ID, 10, export.PhaseEncoding, ""))
	require.NoError(t, m.UpdateJobStatus(job.ID, export.StatusFailed, &export.ResultFields{Error: "boom"}))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []event.Name{
		event.JobAdded,
		event.JobStart, event.JobUpdated,
		event.JobProgress,
		event.JobFailed, event.JobUpdated,
	}, names)
}
