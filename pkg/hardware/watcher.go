// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package hardware

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ProfileWatcher reloads a FileProvider whenever its file is written.
//
// Rapid successive writes are coalesced into one reload after the debounce
// delay.
type ProfileWatcher struct {
	provider      *FileProvider
	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	logger        zerolog.Logger

	// onReload is invoked after each successful reload (tests hook in here)
	onReload func(Profile)

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewProfileWatcher creates a watcher for provider's file.
func NewProfileWatcher(provider *FileProvider, logger zerolog.Logger) (*ProfileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ProfileWatcher{
		provider:      provider,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        logger.With().Str("component", "hardware.watcher").Logger(),
	}, nil
}

// OnReload registers a callback invoked with the new profile after each reload.
func (w *ProfileWatcher) OnReload(fn func(Profile)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start watches the profile file until ctx is cancelled. Run it in its own
// goroutine.
func (w *ProfileWatcher) Start(ctx context.Context) error {
	// fsnotify watches directories, not files
	dir := filepath.Dir(w.provider.Path())
	name := filepath.Base(w.provider.Path())

	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error().Err(err).Str("dir", dir).Msg("Failed to watch hardware profile directory")
		return err
	}

	w.logger.Info().
		Str("file", w.provider.Path()).
		Dur("debounce", w.debounceDelay).
		Msg("Watching hardware profile")

	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Debug().Str("op", event.Op.String()).Msg("Hardware profile changed")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *ProfileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		if err := w.provider.Reload(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reload hardware profile")
			return
		}

		prof, _ := w.provider.Detect(context.Background())
		w.logger.Info().Str("tier", string(prof.Tier)).Msg("Hardware profile reloaded")

		w.mu.Lock()
		fn := w.onReload
		w.mu.Unlock()
		if fn != nil {
			fn(prof)
		}
	})
}

// Close stops the watcher.
func (w *ProfileWatcher) Close() error {
	return w.watcher.Close()
}
