// Package deps wires the export runtime from configuration.
//
// The Deps struct holds everything the server components share (queue,
// exporter, cache, archive, event bus) so HTTP handlers and the CLI can be
// built against one graph and tests can substitute parts of it.
package deps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/exporter"
	"github.com/framecast/framecast/pkg/hardware"
	"github.com/framecast/framecast/pkg/pipeline"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/queue"
	"github.com/framecast/framecast/pkg/rendercache"
	"github.com/framecast/framecast/pkg/renderer"
	"github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/storage"
)

// Deps holds all dependencies required by server components.
type Deps struct {
	Config config.Config

	// Hardware feeds the optimizer. Watcher is set only when the profile
	// comes from a watched file.
	Hardware hardware.Provider
	Watcher  *hardware.ProfileWatcher

	Optimizer *quality.Optimizer
	Renderer  pipeline.Renderer

	// Cache is nil when cache.backend is "none".
	Cache *rendercache.Cache

	Events   *event.Bus
	Queue    *queue.Manager
	Exporter *exporter.Service

	// Archive is nil when storage.backend is "none".
	Archive  storage.Backend
	Archiver *storage.Archiver

	Logger zerolog.Logger

	// Ready is flipped by the app runtime once the HTTP listener and the
	// dispatch loop are up. /readyz reports it.
	Ready *atomic.Bool

	startOnce sync.Once
	cancel    context.CancelFunc
	watchDone chan struct{}
}

// Build constructs the runtime graph from the loaded configuration. Errors
// carry server error codes so the CLI can print suggestions.
func Build(ctx context.Context, mgr *config.Manager, logger zerolog.Logger) (*Deps, error) {
	if mgr == nil {
		return nil, server.ErrConfigUnavailable
	}
	cfg := mgr.Get()

	if cfg.Queue.MaxConcurrent < 1 {
		return nil, server.NewInvalidConcurrencyError(cfg.Queue.MaxConcurrent)
	}
	strategy, err := quality.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return nil, server.WrapInvalidConfig(fmt.Errorf("pipeline.strategy: %w", err))
	}

	d := &Deps{
		Config: cfg,
		Logger: logger,
		Ready:  &atomic.Bool{},
	}

	if err := d.buildHardware(cfg.Hardware, mgr.Section("hardware")); err != nil {
		return nil, err
	}
	d.Optimizer = quality.NewOptimizer(d.Hardware)

	d.Renderer, err = renderer.New(renderer.Config{
		Mode:          cfg.Renderer.Mode,
		URL:           cfg.Renderer.URL,
		Token:         cfg.Renderer.Token,
		Timeout:       cfg.Renderer.Timeout,
		RetryAttempts: cfg.Renderer.RetryAttempts,
	})
	if err != nil {
		d.closeWatcher()
		return nil, server.WrapInvalidConfig(fmt.Errorf("renderer: %w", err))
	}

	d.Cache, err = rendercache.Open(ctx, rendercache.Options{
		Backend:     cfg.Cache.Backend,
		MaxEntries:  cfg.Cache.MaxEntries,
		Dir:         cfg.Cache.Dir,
		RedisAddr:   cfg.Cache.RedisAddr,
		RedisPrefix: cfg.Cache.RedisPrefix,
		TTL:         cfg.Cache.TTL,
	}, logger)
	if err != nil {
		d.closeWatcher()
		return nil, server.WrapCacheInit(fmt.Errorf("open render cache: %w", err))
	}

	storeCfg := &storage.Config{
		Backend:       cfg.Storage.Backend,
		WorkspaceRoot: cfg.Storage.WorkspaceRoot,
		DatabaseURL:   cfg.Storage.DatabaseURL,
	}
	d.Archive, err = storage.NewBackend(ctx, storeCfg)
	if err != nil {
		d.closeBuilt()
		return nil, server.WrapStorageInit(err)
	}
	if d.Archive != nil {
		d.Archiver = storage.NewArchiver(d.Archive)
	}

	d.Events = event.New()
	d.Exporter = exporter.New(exporter.Config{
		WorkDir:       cfg.Pipeline.WorkDir,
		OutputDir:     cfg.Pipeline.OutputDir,
		PublicBaseURL: cfg.Pipeline.PublicBaseURL,
		Strategy:      strategy,
	}, d.Renderer, d.Optimizer, d.Cache, logger)
	d.Queue = queue.NewManager(queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		PollInterval:  cfg.Queue.PollInterval,
		MaxAttempts:   cfg.Queue.MaxAttempts,
	},
		queue.WithProcessor(d.Exporter),
		queue.WithEvents(d.Events),
		queue.WithLogger(logger),
	)

	logger.Debug().
		Str("renderer", cfg.Renderer.Mode).
		Str("cache", cfg.Cache.Backend).
		Str("storage", cfg.Storage.Backend).
		Str("strategy", string(strategy)).
		Int("max_concurrent", cfg.Queue.MaxConcurrent).
		Msg("Runtime dependencies built")
	return d, nil
}

func (d *Deps) buildHardware(cfg config.HardwareConfig, section map[string]any) error {
	if cfg.ProfileFile == "" {
		d.Hardware = hardware.NewMapProvider(section)
		if _, err := d.Hardware.Detect(context.Background()); err != nil {
			return server.WrapInvalidConfig(fmt.Errorf("hardware: %w", err))
		}
		return nil
	}

	fp := hardware.NewFileProvider(cfg.ProfileFile, d.Logger)
	if err := fp.Reload(); err != nil {
		return server.WrapInvalidConfig(err)
	}
	d.Hardware = fp
	if !cfg.Watch {
		return nil
	}
	w, err := hardware.NewProfileWatcher(fp, d.Logger)
	if err != nil {
		return server.WrapAppInit(fmt.Errorf("watch hardware profile: %w", err))
	}
	d.Watcher = w
	return nil
}

// Start attaches the archiver, starts the profile watcher and, when
// dispatch is true, the queue's dispatch loop. It is safe to call once.
func (d *Deps) Start(ctx context.Context, dispatch bool) error {
	var err error
	d.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel

		if d.Archiver != nil {
			d.Archiver.Attach(d.Events)
		}

		if d.Watcher != nil {
			d.watchDone = make(chan struct{})
			go func() {
				defer close(d.watchDone)
				if werr := d.Watcher.Start(runCtx); werr != nil && !errors.Is(werr, context.Canceled) {
					d.Logger.Warn().Err(werr).Msg("Hardware profile watcher stopped")
				}
			}()
		}

		if dispatch {
			err = d.Queue.Start(runCtx)
		}
	})
	return err
}

// Stop shuts the runtime down in reverse start order. A failing step does
// not skip the ones after it.
func (d *Deps) Stop(ctx context.Context) error {
	d.SetNotReady()

	var errs []error
	if err := d.Queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop queue: %w", err))
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.watchDone != nil {
		select {
		case <-d.watchDone:
		case <-ctx.Done():
		}
	}
	if d.Archiver != nil {
		d.Archiver.Detach()
	}
	d.Events.Close()
	d.closeBuilt()
	return errors.Join(errs...)
}

func (d *Deps) closeWatcher() {
	if d.Watcher != nil {
		_ = d.Watcher.Close()
	}
}

func (d *Deps) closeBuilt() {
	d.closeWatcher()
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.Logger.Warn().Err(err).Msg("Render cache close failed")
		}
	}
	if d.Archive != nil {
		if err := d.Archive.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
			d.Logger.Warn().Err(err).Msg("Job archive close failed")
		}
	}
}

// SetReady marks the server as ready to serve traffic.
func (d *Deps) SetReady() {
	d.Ready.Store(true)
}

// SetNotReady marks the server as not ready (e.g., during shutdown).
func (d *Deps) SetNotReady() {
	d.Ready.Store(false)
}

// IsReady returns true if the server is ready to serve traffic.
func (d *Deps) IsReady() bool {
	return d.Ready.Load()
}
