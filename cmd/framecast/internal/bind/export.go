package bind

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/exportexec"
	"github.com/framecast/framecast/pkg/quality"
)

// ExportOptions holds configuration options for the export command.
type ExportOptions struct {
	Input     string
	OutputDir string
	// Strategy is empty when the configured pipeline.strategy applies.
	Strategy quality.Strategy
	Params   exportexec.Params
}

// AddSettingsFlags registers the render settings flags shared by the
// export and optimize commands.
func AddSettingsFlags(flags *pflag.FlagSet) {
	flags.String("format", string(export.FormatMP4), "Container format: MP4|WEBM|MOV|GIF")
	flags.String("resolution", string(export.ResolutionFullHD1080), "Resolution: SD_480|HD_720|FULL_HD_1080|UHD_4K (or 480, 720, 1080, 4k)")
	flags.String("quality", string(export.QualityHigh), "Quality: LOW|MEDIUM|HIGH|ULTRA")
	flags.Int("fps", 30, "Frame rate (0 keeps the source rate)")
	flags.String("watermark-text", "", "Watermark text")
	flags.String("watermark-position", "bottom-right", "Watermark position: top-left|top-right|bottom-left|bottom-right|center")
	flags.Float64("watermark-opacity", 0.8, "Watermark opacity between 0 and 1")
	flags.StringArray("filter", nil, "Video filter as type=value (repeatable)")
	flags.StringArray("audio", nil, "Audio enhancement as type[=value] (repeatable)")
	flags.String("subtitles", "", "Subtitle file to include")
	flags.Bool("burn-in", false, "Burn subtitles into the video")
	flags.String("strategy", "", "Optimization strategy: SPEED|QUALITY|BALANCED|ADAPTIVE (default: pipeline.strategy)")
}

// BindSettings extracts render settings from the flags registered by
// AddSettingsFlags. The result is not validated against hardware.
func BindSettings(cmd *cobra.Command) (export.Settings, error) {
	formatFlag, _ := cmd.Flags().GetString("format")
	resolution, _ := cmd.Flags().GetString("resolution")
	qualityFlag, _ := cmd.Flags().GetString("quality")
	fps, _ := cmd.Flags().GetInt("fps")
	wmText, _ := cmd.Flags().GetString("watermark-text")
	wmPosition, _ := cmd.Flags().GetString("watermark-position")
	wmOpacity, _ := cmd.Flags().GetFloat64("watermark-opacity")
	filters, _ := cmd.Flags().GetStringArray("filter")
	audio, _ := cmd.Flags().GetStringArray("audio")
	subtitles, _ := cmd.Flags().GetString("subtitles")
	burnIn, _ := cmd.Flags().GetBool("burn-in")

	if fps < 0 {
		return export.Settings{}, fmt.Errorf("fps must not be negative, got %d", fps)
	}

	s := export.Settings{
		Format:     export.Format(strings.ToUpper(formatFlag)),
		Resolution: ParseResolution(resolution),
		Quality:    export.Quality(strings.ToUpper(qualityFlag)),
		FPS:        fps,
	}

	if wmText != "" {
		s.Watermark = &export.Watermark{
			Text:     wmText,
			Position: wmPosition,
			Opacity:  wmOpacity,
		}
	}

	for _, raw := range filters {
		typ, value, err := parseKeyValue(raw, true)
		if err != nil {
			return export.Settings{}, fmt.Errorf("--filter: %w", err)
		}
		s.VideoFilters = append(s.VideoFilters, export.VideoFilter{Type: typ, Value: value})
	}

	for _, raw := range audio {
		typ, value, err := parseKeyValue(raw, false)
		if err != nil {
			return export.Settings{}, fmt.Errorf("--audio: %w", err)
		}
		s.AudioEnhancements = append(s.AudioEnhancements, export.AudioEnhancement{Type: typ, Value: value})
	}

	if subtitles != "" {
		s.Subtitle = &export.Subtitle{Enabled: true, Source: subtitles, BurnIn: burnIn}
	}

	if err := s.Validate(); err != nil {
		return export.Settings{}, err
	}
	return s, nil
}

// BindStrategy reads --strategy. Empty means the configured strategy.
func BindStrategy(cmd *cobra.Command) (quality.Strategy, error) {
	raw, _ := cmd.Flags().GetString("strategy")
	if raw == "" {
		return "", nil
	}
	return quality.ParseStrategy(raw)
}

// BindExportOptions extracts and validates export command flags.
//
// Flags read:
//   - --input: Source media the timeline renders from (required)
//   - --output-dir: Overrides pipeline.output_dir
//   - --user / --project / --timeline: Owner fields recorded on the job
//   - every flag registered by AddSettingsFlags
func BindExportOptions(cmd *cobra.Command) (ExportOptions, error) {
	input, _ := cmd.Flags().GetString("input")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	user, _ := cmd.Flags().GetString("user")
	project, _ := cmd.Flags().GetString("project")
	timeline, _ := cmd.Flags().GetString("timeline")

	if input == "" {
		return ExportOptions{}, exportexec.ErrNoInput
	}

	settings, err := BindSettings(cmd)
	if err != nil {
		return ExportOptions{}, exportexec.WithErrorCode(err, "EXPORT_INVALID_SETTINGS")
	}

	strategy, err := BindStrategy(cmd)
	if err != nil {
		return ExportOptions{}, exportexec.WithErrorCode(err, "EXPORT_INVALID_SETTINGS")
	}

	if timeline == "" {
		timeline = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}

	return ExportOptions{
		Input:     input,
		OutputDir: outputDir,
		Strategy:  strategy,
		Params: exportexec.Params{
			Input:      input,
			UserID:     user,
			ProjectID:  project,
			TimelineID: timeline,
			Settings:   settings,
		},
	}, nil
}

// ParseResolution accepts the enum names and the common shorthands.
func ParseResolution(raw string) export.Resolution {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "480", "480p", "sd":
		return export.ResolutionSD480
	case "720", "720p", "hd":
		return export.ResolutionHD720
	case "1080", "1080p", "fullhd", "full_hd":
		return export.ResolutionFullHD1080
	case "2160", "2160p", "4k", "uhd":
		return export.ResolutionUHD4K
	default:
		return export.Resolution(strings.ToUpper(raw))
	}
}

func parseKeyValue(raw string, valueRequired bool) (string, float64, error) {
	key, value, found := strings.Cut(raw, "=")
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", 0, fmt.Errorf("empty type in %q", raw)
	}
	if !found {
		if valueRequired {
			return "", 0, fmt.Errorf("expected type=value, got %q", raw)
		}
		return key, 0, nil
	}
	v, err := cast.ToFloat64E(strings.TrimSpace(value))
	if err != nil {
		return "", 0, fmt.Errorf("invalid value in %q: %w", raw, err)
	}
	return key, v, nil
}
