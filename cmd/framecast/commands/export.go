// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/bind"
	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/exportexec"
	"github.com/framecast/framecast/pkg/server"
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a timeline into a video file",
		Long: `Render one export in-process: the settings are validated against this
machine, adjusted by the optimization strategy and rendered through the
pipeline. Progress is printed to stderr. Ctrl+C cancels the job.`,
		Example: `  framecast export --input intro.mov
  framecast export -i intro.mov --resolution 720 --fps 30 --watermark-text ACME
  framecast export -i intro.mov --filter brightness=1.1 --audio normalize --output-dir ./out`,
		GroupID: "export",
		Args:    cobra.NoArgs,
		RunE:    runExportCommand,
	}

	cmd.Flags().StringP("input", "i", "", "Source media to render (required)")
	cmd.Flags().String("output-dir", "", "Directory for the finished export (default: pipeline.output_dir)")
	cmd.Flags().String("user", "cli", "User ID recorded on the job")
	cmd.Flags().String("project", "local", "Project ID recorded on the job")
	cmd.Flags().String("timeline", "", "Timeline ID recorded on the job (default: input file name)")
	bind.AddSettingsFlags(cmd.Flags())

	return cmd
}

func runExportCommand(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	opts, err := bind.BindExportOptions(cmd)
	if err != nil {
		return fail(formatter, "export", err, exportexec.ErrorCode(err))
	}

	mgr, err := configManager(cmd)
	if err != nil {
		return fail(formatter, "export", err, server.ErrorCode(err))
	}
	overrides := map[string]any{}
	if opts.OutputDir != "" {
		overrides["pipeline.output_dir"] = opts.OutputDir
	}
	if opts.Strategy != "" {
		overrides["pipeline.strategy"] = string(opts.Strategy)
	}
	if err := mgr.Override(overrides); err != nil {
		wrapped := server.WrapInvalidConfig(err)
		return fail(formatter, "export", wrapped, server.ErrorCode(wrapped))
	}

	d, stop, err := buildRuntime(cmd, "export")
	if err != nil {
		return fail(formatter, "export", err, server.ErrorCode(err))
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := exportexec.NewService()
	if !formatter.IsJSON() && !quiet(cmd) {
		svc.WithProgressSink(&progressPrinter{w: cmd.ErrOrStderr()})
	}

	res, err := svc.Run(ctx, d, opts.Params)
	if err != nil {
		if res != nil && len(res.Validation.Issues) > 0 && !formatter.IsJSON() {
			printIssues(cmd.ErrOrStderr(), res.Validation.Issues)
		}
		return fail(formatter, "export", err, exportexec.ErrorCode(err))
	}

	if formatter.IsJSON() {
		return formatter.PrintJSON(res)
	}
	if quiet(cmd) {
		return formatter.PrintSuccessSummary("exported", res.Job.ID, res.Job.OutputPath)
	}

	job := res.Job
	fields := [][2]string{
		{"Job", job.ID},
		{"Output", job.OutputPath},
		{"Size", humanBytes(job.FileSize)},
		{"Settings", settingsLine(job.Settings)},
		{"Cache hit", strconv.FormatBool(job.CacheHit)},
	}
	if job.OutputURL != "" {
		fields = append(fields, [2]string{"URL", job.OutputURL})
	}
	for _, a := range job.Adjustments {
		fields = append(fields, [2]string{"Adjusted", a})
	}
	for _, r := range res.Validation.Recommendations {
		fields = append(fields, [2]string{"Hint", r})
	}
	return formatter.PrintPanel("Export completed", fields, res)
}

// progressPrinter writes one line per whole-percent change.
type progressPrinter struct {
	w    io.Writer
	last int
}

func (p *progressPrinter) OnEvent(e exportexec.ProgressEvent) {
	switch e.Event {
	case event.JobStart:
		p.last = -1
		_, _ = fmt.Fprintf(p.w, "Rendering job %s\n", e.JobID)
	case event.JobProgress:
		pct := int(e.Progress)
		if pct == p.last {
			return
		}
		p.last = pct
		line := fmt.Sprintf("[%3d%%] %s", pct, e.Phase)
		if e.Message != "" {
			line += "  " + e.Message
		}
		_, _ = fmt.Fprintln(p.w, line)
	}
}

func printIssues(w io.Writer, issues []string) {
	_, _ = fmt.Fprintln(w, "Settings cannot be rendered on this machine:")
	for _, issue := range issues {
		_, _ = fmt.Fprintf(w, "  - %s\n", issue)
	}
}
