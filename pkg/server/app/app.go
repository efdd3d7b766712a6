// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package app runs the HTTP server on top of the export runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/server/api"
	"github.com/framecast/framecast/pkg/server/deps"
	"github.com/framecast/framecast/pkg/server/httpx"
)

// ShutdownTimeout bounds graceful shutdown: draining HTTP connections and
// waiting for running renders.
const ShutdownTimeout = 30 * time.Second

// App orchestrates the server runtime components:
// - HTTP server (API + event stream)
// - Queue dispatch loop
// - Lifecycle management
type App struct {
	HTTP   *http.Server
	Deps   *deps.Deps
	Ready  *atomic.Bool
	Config config.ServerConfig

	mu       sync.Mutex
	listener net.Listener
}

// New creates and configures a new server application. Port 0 binds an
// ephemeral port; Addr reports it once Run is listening.
func New(ctx context.Context, cfg config.ServerConfig, d *deps.Deps) (*App, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, server.NewInvalidPortError(cfg.Port)
	}
	if !cfg.APIEnabled && !cfg.JobsEnabled {
		return nil, server.NewFeaturesDisabledError()
	}
	if d == nil {
		return nil, server.ErrConfigUnavailable
	}

	d.Logger.Info().Msg("Initializing server application")

	strategy, err := quality.ParseStrategy(d.Config.Pipeline.Strategy)
	if err != nil {
		return nil, server.WrapInvalidConfig(err)
	}

	apiCfg := api.DefaultConfig()
	if err := apiCfg.Validate(); err != nil {
		return nil, server.WrapInvalidConfig(err)
	}

	closing := make(chan struct{})
	apiDeps := &api.Deps{
		Queue:     d.Queue,
		Exporter:  d.Exporter,
		Optimizer: d.Optimizer,
		Strategy:  strategy,
		Cache:     d.Cache,
		Archive:   d.Archive,
		Events:    d.Events,
		Config:    apiCfg,
		Ready:     d.Ready,
		Closing:   closing,
	}

	router := httpx.NewRouter(cfg, apiDeps)

	if cfg.APIEnabled {
		d.Logger.Info().Msg("API endpoints enabled")
	} else {
		d.Logger.Warn().Msg("API endpoints disabled")
	}
	if !cfg.JobsEnabled {
		d.Logger.Warn().Msg("Dispatch loop disabled, jobs will stay PENDING")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		Handler:      httpx.Chain(cfg, router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	var once sync.Once
	httpServer.RegisterOnShutdown(func() {
		once.Do(func() { close(closing) })
	})

	return &App{
		HTTP:   httpServer,
		Deps:   d,
		Ready:  d.Ready,
		Config: cfg,
	}, nil
}

// Addr returns the bound listen address, or nil before Run is listening.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. The runtime is stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	logger := a.Deps.Logger
	logger.Info().
		Str("addr", a.HTTP.Addr).
		Bool("api", a.Config.APIEnabled).
		Bool("jobs", a.Config.JobsEnabled).
		Msg("Starting Framecast server")

	ln, err := net.Listen("tcp", a.HTTP.Addr)
	if err != nil {
		stopErr := a.Deps.Stop(context.Background())
		return errors.Join(server.WrapRuntime(fmt.Errorf("listen on %s: %w", a.HTTP.Addr, err)), stopErr)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		if err := a.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if err := a.Deps.Start(ctx, a.Config.JobsEnabled); err != nil {
		return errors.Join(server.WrapRuntime(fmt.Errorf("start runtime: %w", err)), a.shutdown())
	}

	a.Deps.SetReady()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Server is ready and accepting connections")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("Server error")
		return errors.Join(server.WrapRuntime(err), a.shutdown())
	}

	return a.shutdown()
}

// shutdown drains HTTP first so no new jobs arrive, then stops the runtime.
func (a *App) shutdown() error {
	logger := a.Deps.Logger
	logger.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	a.Deps.SetNotReady()

	var errs []error
	logger.Info().Msg("Shutting down HTTP server...")
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
		errs = append(errs, err)
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	logger.Info().Msg("Stopping export runtime...")
	if err := a.Deps.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Runtime shutdown failed")
		errs = append(errs, err)
	}

	logger.Info().Msg("Server shutdown complete")
	return errors.Join(errs...)
}
