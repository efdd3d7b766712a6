package commands

import (
	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/bind"
	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/exportexec"
	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/server"
)

// OptimizeReport is the JSON shape of 'framecast optimize'.
type OptimizeReport struct {
	Optimization quality.Result     `json:"optimization"`
	Validation   quality.Validation `json:"validation"`
}

func newOptimizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Preview how export settings are adjusted for this machine",
		Long: `Validate export settings against the detected hardware and show the
settings the chosen strategy would render with. Nothing is rendered.

Exits with status 2 when the settings cannot be rendered here.`,
		Example: `  framecast optimize --resolution 4k --fps 60 --strategy adaptive
  framecast optimize --quality ultra --filter blur=2 -o json`,
		GroupID: "export",
		Args:    cobra.NoArgs,
		RunE:    runOptimizeCommand,
	}
	bind.AddSettingsFlags(cmd.Flags())
	return cmd
}

func runOptimizeCommand(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	settings, err := bind.BindSettings(cmd)
	if err != nil {
		wrapped := exportexec.WithErrorCode(err, "EXPORT_INVALID_SETTINGS")
		return fail(formatter, "optimize", wrapped, exportexec.ErrorCode(wrapped))
	}
	strategy, err := bind.BindStrategy(cmd)
	if err != nil {
		wrapped := exportexec.WithErrorCode(err, "EXPORT_INVALID_SETTINGS")
		return fail(formatter, "optimize", wrapped, exportexec.ErrorCode(wrapped))
	}

	d, stop, err := buildRuntime(cmd, "optimize")
	if err != nil {
		return fail(formatter, "optimize", err, server.ErrorCode(err))
	}
	defer stop()

	if strategy == "" {
		if strategy, err = quality.ParseStrategy(d.Config.Pipeline.Strategy); err != nil {
			wrapped := server.WrapInvalidConfig(err)
			return fail(formatter, "optimize", wrapped, server.ErrorCode(wrapped))
		}
	}

	ctx := cmd.Context()
	res, err := d.Optimizer.Optimize(ctx, settings, strategy)
	if err != nil {
		return fail(formatter, "optimize", err, server.ErrorCode(err))
	}
	v, err := d.Optimizer.Validate(ctx, settings)
	if err != nil {
		return fail(formatter, "optimize", err, server.ErrorCode(err))
	}

	fields := [][2]string{
		{"Tier", string(res.Tier)},
		{"Strategy", strategyLine(res)},
		{"Requested", settingsLine(res.OriginalSettings)},
		{"Rendered as", settingsLine(res.Settings)},
	}
	for _, a := range res.Adjustments {
		fields = append(fields, [2]string{"Adjusted", a})
	}
	for _, issue := range v.Issues {
		fields = append(fields, [2]string{"Issue", issue})
	}
	for _, r := range v.Recommendations {
		fields = append(fields, [2]string{"Hint", r})
	}

	if err := formatter.PrintPanel("Optimization preview", fields, OptimizeReport{Optimization: res, Validation: v}); err != nil {
		return err
	}
	return v.Err()
}

func strategyLine(res quality.Result) string {
	if res.RequestedStrategy == res.Strategy {
		return string(res.Strategy)
	}
	return string(res.RequestedStrategy) + " -> " + string(res.Strategy)
}
