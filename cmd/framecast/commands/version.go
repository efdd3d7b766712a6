package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var (
		short  bool
		latest string
	)

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)
			info := version.Get()

			if latest != "" {
				newer, err := version.Newer(latest)
				if err != nil {
					return err
				}
				if newer {
					_ = formatter.PrintSummary(fmt.Sprintf("A newer release is available: %s (running %s)", latest, info.Version))
				} else {
					_ = formatter.PrintSummary("framecast is up to date")
				}
			}

			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), info.Version)
				return err
			}
			return formatter.PrintPanel(cliExecutable+" "+info.Version, [][2]string{
				{"Commit", info.Commit},
				{"Built", info.BuildDate},
				{"Go version", info.GoVersion},
				{"Platform", info.Platform},
			}, info)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	cmd.Flags().StringVar(&latest, "latest", "", "Compare against this release version")

	return cmd
}
