// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package server provides the Cobra command implementation for the Framecast server lifecycle.
// It wires CLI flags to the server runtime and handles the start command.
package server

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/appctx"
	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/logging"
	serversvc "github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/server/app"
	"github.com/framecast/framecast/pkg/server/deps"
)

// newStartServerCommand creates and returns the 'framecast server start' command.
//
// This command initializes the Framecast server runtime, which includes:
//   - HTTP API server with REST endpoints (/api/v1/exports, etc.)
//   - Event stream (/api/v1/events)
//   - Health and readiness endpoints (/healthz, /readyz)
//   - The queue dispatch loop rendering jobs in the background
//
// The server runs until interrupted (SIGINT/SIGTERM) or context cancellation,
// then performs graceful shutdown (HTTP close, then running renders finish).
//
// Configuration is loaded from:
//   - Global flags (--config, --debug, --cache.backend, ...)
//   - Server-specific flags (--server.addr, --server.port, --queue.max_concurrent, ...)
//   - Environment variables (FRAMECAST_*)
//   - Config file
//
// Example usage:
//
//	framecast server start
//	framecast server start --server.addr 0.0.0.0 --server.port 8080
//	framecast server start --queue.max_concurrent 4 --storage.backend local
func newStartServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Framecast server",
		Long: `Start the Framecast server process.

The server hosts multiple components in a single runtime:
  - HTTP API (REST endpoints for export jobs, queue and cache)
  - Websocket event stream of job lifecycle events
  - Queue dispatch loop rendering jobs in the background

The server runs until interrupted (Ctrl+C) or killed, performing graceful
shutdown to drain in-flight requests and complete running jobs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)

			cfgMgr, ok := appctx.Config(cmd.Context())
			if !ok {
				err := serversvc.ErrConfigUnavailable
				return fail(formatter, err)
			}
			cfg := cfgMgr.Get()

			// Validate before building anything that opens stores.
			if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
				return fail(formatter, serversvc.NewInvalidPortError(cfg.Server.Port))
			}
			if !cfg.Server.APIEnabled && !cfg.Server.JobsEnabled {
				return fail(formatter, serversvc.NewFeaturesDisabledError())
			}
			if err := validateAuth(cfg.Server.Auth); err != nil {
				return fail(formatter, serversvc.WrapInvalidConfig(err))
			}

			logger := logging.Component("server")

			d, err := deps.Build(cmd.Context(), cfgMgr, logger)
			if err != nil {
				return fail(formatter, err)
			}

			serverApp, err := app.New(cmd.Context(), cfg.Server, d)
			if err != nil {
				_ = d.Stop(cmd.Context())
				return fail(formatter, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Run server (blocks until shutdown)
			if err := serverApp.Run(ctx); err != nil {
				return fail(formatter, serversvc.WrapRuntime(err))
			}
			return nil
		},
	}

	config.BindServerFlags(cmd.Flags())

	return cmd
}

func fail(formatter format.Formatter, err error) error {
	_ = formatter.PrintTotalFailureSummary("start server", err, serversvc.ErrorCode(err))
	return err
}

func validateAuth(auth config.AuthConfig) error {
	switch auth.Mode {
	case "", "none":
		return nil
	case "token":
		if auth.Token == "" {
			return errTokenRequired
		}
		return nil
	default:
		return errUnknownAuthMode(auth.Mode)
	}
}
