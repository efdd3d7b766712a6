package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/hardware"
	"github.com/framecast/framecast/pkg/server"
)

// loadManager returns a config manager with defaults overlaid by yaml.
func loadManager(t *testing.T, yaml string) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	mgr := config.NewManager()
	require.NoError(t, mgr.LoadWithSources([]config.ConfigSource{
		&config.DefaultSource{},
		&config.FileSource{Path: path},
	}))
	return mgr
}

func baseYAML(t *testing.T) string {
	dir := t.TempDir()
	return fmt.Sprintf(`
pipeline:
  work_dir: %q
  output_dir: %q
queue:
  poll_interval: 10ms
hardware:
  tier: HIGH
  cpu_cores: 8
  memory_gb: 16
cache:
  backend: memory
`, filepath.Join(dir, "work"), filepath.Join(dir, "out"))
}

func stopDeps(t *testing.T, d *Deps) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestBuild_Defaults(t *testing.T) {
	d, err := Build(context.Background(), loadManager(t, baseYAML(t)), zerolog.Nop())
	require.NoError(t, err)
	defer stopDeps(t, d)

	assert.NotNil(t, d.Queue)
	assert.NotNil(t, d.Exporter)
	assert.NotNil(t, d.Cache)
	assert.Nil(t, d.Archive, "storage.backend defaults to none")
	assert.Nil(t, d.Archiver)
	assert.Nil(t, d.Watcher)
	assert.False(t, d.IsReady())

	prof, err := d.Hardware.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hardware.TierHigh, prof.Tier)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name     string
		extra    string
		wantCode string
		wantIs   error
	}{
		{"zero concurrency", "queue:\n  max_concurrent: 0\n", "SERVER_INVALID_CONCURRENCY", server.ErrInvalidConcurrency},
		{"unknown strategy", "pipeline:\n  strategy: FASTEST\n", "SERVER_INVALID_CONFIG", nil},
		{"unknown renderer", "renderer:\n  mode: ffmpeg\n", "SERVER_INVALID_CONFIG", nil},
		{"unknown cache backend", "cache:\n  backend: memcached\n", "SERVER_CACHE_INIT_FAILED", nil},
		{"postgres without url", "storage:\n  backend: postgres\n", "SERVER_STORAGE_INIT_FAILED", nil},
		{"bad hardware tier", "hardware:\n  tier: GIGANTIC\n", "SERVER_INVALID_CONFIG", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), loadManager(t, tt.extra), zerolog.Nop())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, server.ErrorCode(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestBuild_NilManager(t *testing.T) {
	_, err := Build(context.Background(), nil, zerolog.Nop())
	require.ErrorIs(t, err, server.ErrConfigUnavailable)
}

func TestBuild_ProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hardware.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cpu_cores: 2\nmemory_gb: 4\n"), 0o644))

	d, err := Build(context.Background(), loadManager(t, fmt.Sprintf("hardware:\n  profile_file: %q\n  watch: true\n", path)), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, d.Watcher)
	require.NoError(t, d.Start(context.Background(), false))
	defer stopDeps(t, d)

	prof, err := d.Hardware.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hardware.TierLow, prof.Tier)

	_, err = Build(context.Background(), loadManager(t, "hardware:\n  profile_file: /does/not/exist.yaml\n"), zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, "SERVER_INVALID_CONFIG", server.ErrorCode(err))
}

func TestStartStop_RunsJobsAndArchives(t *testing.T) {
	root := t.TempDir()
	yaml := baseYAML(t) + fmt.Sprintf("storage:\n  backend: local\n  workspace_root: %q\n", root)
	d, err := Build(context.Background(), loadManager(t, yaml), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, d.Archive)
	require.NoError(t, d.Start(context.Background(), true))

	source := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(source, []byte("frames"), 0o644))

	job, v, err := d.Exporter.Submit(context.Background(), d.Queue, export.Request{
		UserID:       "u1",
		ProjectID:    "p1",
		TimelineID:   "t1",
		Settings:     export.Settings{Format: export.FormatMP4, Resolution: export.ResolutionFullHD1080, Quality: export.QualityHigh, FPS: 30},
		TimelineData: []byte(fmt.Sprintf(`{"source":%q}`, source)),
	})
	require.NoError(t, err)
	assert.True(t, v.Valid)

	require.Eventually(t, func() bool {
		got, err := d.Archive.Get(context.Background(), job.ID)
		return err == nil && got.Status == export.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	stopDeps(t, d)
	assert.False(t, d.IsReady())

	// archive stays readable through a fresh handle after shutdown
	d2, err := Build(context.Background(), loadManager(t, yaml), zerolog.Nop())
	require.NoError(t, err)
	defer stopDeps(t, d2)
	got, err := d2.Archive.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCompleted, got.Status)
}

func TestStop_WithoutStart(t *testing.T) {
	d, err := Build(context.Background(), loadManager(t, baseYAML(t)), zerolog.Nop())
	require.NoError(t, err)
	d.SetReady()
	require.NoError(t, d.Stop(context.Background()))
	assert.False(t, d.IsReady())
}
