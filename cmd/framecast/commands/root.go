// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/commands/server"
	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/appctx"
	"github.com/framecast/framecast/pkg/config"
	"github.com/framecast/framecast/pkg/logging"
)

const cliExecutable = "framecast"

// NewCommand constructs the top-level framecast CLI command, wiring global
// flags, configuration loading and logging.
func NewCommand() *cobra.Command {
	var (
		configFile string
		output     string
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Framecast renders timelines into video exports",
		Long: `Framecast queues video export jobs, adapts their settings to the
machine they run on and renders them through a staged pipeline.

Run a single export locally with 'framecast export', or serve the HTTP API
and job queue with 'framecast server start'.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(output); err != nil {
				return err
			}

			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			cfg := mgr.Get()
			if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			log.Debug().Str("config", configFile).Str("command", cmd.CommandPath()).Msg("Configuration loaded")

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", string(format.ModeTable), "Output format: table|json")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Print only essential output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "export", Title: "Export Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newOptimizeCommand())
	cmd.AddCommand(newHardwareCommand())
	cmd.AddCommand(newCacheCommand())
	cmd.AddCommand(newArchiveCommand())
	cmd.AddCommand(server.NewCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
