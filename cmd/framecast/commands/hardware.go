package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/hardware"
	"github.com/framecast/framecast/pkg/server"
)

// HardwareReport is the JSON shape of 'framecast hardware'.
type HardwareReport struct {
	Profile hardware.Profile `json:"profile"`
	Preset  hardware.Preset  `json:"preset"`
}

func newHardwareCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "hardware",
		Short:   "Show the hardware profile and the render envelope it allows",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)

			d, stop, err := buildRuntime(cmd, "hardware")
			if err != nil {
				return fail(formatter, "detect hardware", err, server.ErrorCode(err))
			}
			defer stop()

			profile, err := d.Hardware.Detect(cmd.Context())
			if err != nil {
				return fail(formatter, "detect hardware", err, server.ErrorCode(err))
			}
			profile = profile.Normalize()
			preset := hardware.PresetFor(profile)

			gpu := "none"
			if profile.GPU.Available {
				gpu = profile.GPU.Name
				if gpu == "" {
					gpu = "available"
				}
			}

			return formatter.PrintPanel("Hardware", [][2]string{
				{"Tier", string(profile.Tier)},
				{"CPU cores", strconv.Itoa(profile.CPUCores)},
				{"Memory", fmt.Sprintf("%.1f GB", profile.MemoryGB)},
				{"GPU", gpu},
				{"Max resolution", string(preset.MaxResolution)},
				{"Max FPS", strconv.Itoa(preset.MaxFPS)},
				{"Max bitrate", fmt.Sprintf("%d kbps", preset.MaxBitrateKbps)},
				{"Threads", strconv.Itoa(preset.Threads)},
				{"Use GPU", strconv.FormatBool(preset.UseGPU)},
				{"Detected", profile.DetectedAt.Format(time.RFC3339)},
			}, HardwareReport{Profile: profile, Preset: preset})
		},
	}
}
