package quality

import (
	"errors"
	"fmt"
	"strings"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/hardware"
)

// MaxFPS is the highest frame rate any export may request.
const MaxFPS = 60

// ErrInvalidSettings is wrapped by every ValidationError.
var ErrInvalidSettings = errors.New("invalid export settings")

// Validation is the outcome of Validate. Valid is true iff Issues is empty;
// recommendations never make settings invalid.
type Validation struct {
	Valid           bool          `json:"valid"`
	Issues          []string      `json:"issues"`
	Recommendations []string      `json:"recommendations"`
	Tier            hardware.Tier `json:"tier"`
}

// Err returns a ValidationError when the settings are invalid, nil otherwise.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Issues: append([]string(nil), v.Issues...)}
}

// ValidationError reports settings that cannot be rendered.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSettings, strings.Join(e.Issues, "; "))
}

// Unwrap returns ErrInvalidSettings.
func (e *ValidationError) Unwrap() error { return ErrInvalidSettings }

// heavyFeatureCount is the number of optional stages above which low-end
// machines are warned.
const heavyFeatureCount = 3

// Validate checks settings for infeasible combinations on profile.
func Validate(settings export.Settings, profile hardware.Profile) Validation {
	profile = profile.Normalize()
	preset := hardware.PresetFor(profile)

	v := Validation{Tier: profile.Tier, Issues: []string{}, Recommendations: []string{}}

	var fe export.FieldErrors
	if err := settings.Validate(); err != nil {
		if errors.As(err, &fe) {
			v.Issues = append(v.Issues, fe.Messages()...)
		} else {
			v.Issues = append(v.Issues, err.Error())
		}
	}

	if settings.FPS < 0 {
		v.Issues = append(v.Issues, fmt.Sprintf("fps must not be negative (got %d)", settings.FPS))
	}
	if settings.FPS > MaxFPS {
		v.Issues = append(v.Issues, fmt.Sprintf("fps %d exceeds the supported maximum of %d", settings.FPS, MaxFPS))
	}
	if settings.Resolution == export.ResolutionUHD4K && profile.Tier == hardware.TierLow {
		v.Issues = append(v.Issues, "UHD_4K exports are not supported on LOW tier hardware")
	}

	if settings.Resolution.Exceeds(preset.MaxResolution) && profile.Tier != hardware.TierLow {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("resolution %s is above the %s tier preset (%s); expect slow renders", settings.Resolution, profile.Tier, preset.MaxResolution))
	}
	if settings.FPS > preset.MaxFPS && settings.FPS <= MaxFPS {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("frame rate %d is above the %s tier preset (%d fps)", settings.FPS, profile.Tier, preset.MaxFPS))
	}
	if settings.Resolution == export.ResolutionUHD4K && !profile.GPU.Available {
		v.Recommendations = append(v.Recommendations, "UHD_4K without a GPU will render on CPU only")
	}
	if settings.Quality == export.QualityUltra && profile.Tier != hardware.TierUltra {
		v.Recommendations = append(v.Recommendations, "ULTRA quality is best reserved for ULTRA tier hardware")
	}
	if (profile.Tier == hardware.TierLow || profile.Tier == hardware.TierMedium) && activeFeatures(settings) >= heavyFeatureCount {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("%d processing stages enabled on %s tier hardware; consider disabling some", activeFeatures(settings), profile.Tier))
	}
	if settings.Format == export.FormatGIF && settings.Resolution.Exceeds(export.ResolutionHD720) {
		v.Recommendations = append(v.Recommendations, "GIF exports above HD_720 produce very large files")
	}

	v.Valid = len(v.Issues) == 0
	return v
}

func activeFeatures(s export.Settings) int {
	n := 0
	for _, on := range []bool{s.HasAudioEnhancements(), s.HasVideoFilters(), s.HasWatermark(), s.HasSubtitles()} {
		if on {
			n++
		}
	}
	return n
}
