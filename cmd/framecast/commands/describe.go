package commands

import (
	"fmt"
	"strings"

	"github.com/framecast/framecast/pkg/export"
)

func settingsLine(s export.Settings) string {
	parts := []string{string(s.Format), string(s.Resolution), string(s.Quality)}
	if s.FPS > 0 {
		parts = append(parts, fmt.Sprintf("%dfps", s.FPS))
	}
	if s.HasWatermark() {
		parts = append(parts, "watermark")
	}
	if s.HasVideoFilters() {
		parts = append(parts, fmt.Sprintf("%d filters", len(s.VideoFilters)))
	}
	if s.HasAudioEnhancements() {
		parts = append(parts, fmt.Sprintf("%d audio", len(s.AudioEnhancements)))
	}
	if s.HasSubtitles() {
		parts = append(parts, "subtitles")
	}
	return strings.Join(parts, " ")
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
