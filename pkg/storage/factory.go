package storage

import (
	"context"
	"fmt"
	"sync"
)

// Factory creates a Backend from a validated configuration.
type Factory func(ctx context.Context, cfg *Config) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		BackendLocal: func(_ context.Context, cfg *Config) (Backend, error) {
			return NewLocalBackend(cfg.WorkspaceRoot)
		},
		BackendPostgres: func(ctx context.Context, cfg *Config) (Backend, error) {
			return NewPostgresBackend(ctx, cfg.DatabaseURL)
		},
	}
)

// RegisterFactory installs or replaces the factory for a backend name.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// NewBackend validates cfg and creates the selected backend. It returns a nil
// Backend and nil error when the archive is disabled.
//
// Example:
//
//	cfg := &storage.Config{
//	    Backend:       "local",
//	    WorkspaceRoot: "~/.local/share/framecast",
//	}
//	backend, err := storage.NewBackend(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if backend != nil {
//	    defer backend.Close()
//	}
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	if cfg == nil {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}
	if cfg.Backend == BackendNone {
		return nil, nil
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend factory registered for %q", cfg.Backend)
	}

	backend, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	return backend, nil
}
