// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Format is the container format of a rendered export.
type Format string

const (
	FormatMP4  Format = "MP4"
	FormatWEBM Format = "WEBM"
	FormatMOV  Format = "MOV"
	FormatGIF  Format = "GIF"
)

// Extension returns the file extension for the container, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatWEBM:
		return ".webm"
	case FormatMOV:
		return ".mov"
	case FormatGIF:
		return ".gif"
	default:
		return ".mp4"
	}
}

// Resolution is the output frame size tier.
type Resolution string

const (
	ResolutionSD480      Resolution = "SD_480"
	ResolutionHD720      Resolution = "HD_720"
	ResolutionFullHD1080 Resolution = "FULL_HD_1080"
	ResolutionUHD4K      Resolution = "UHD_4K"
)

var resolutionRank = map[Resolution]int{
	ResolutionSD480:      1,
	ResolutionHD720:      2,
	ResolutionFullHD1080: 3,
	ResolutionUHD4K:      4,
}

// Rank orders resolutions from smallest (1) to largest. Unknown values rank 0.
func (r Resolution) Rank() int {
	return resolutionRank[r]
}

// Height returns the nominal frame height in pixels.
func (r Resolution) Height() int {
	switch r {
	case ResolutionSD480:
		return 480
	case ResolutionHD720:
		return 720
	case ResolutionFullHD1080:
		return 1080
	case ResolutionUHD4K:
		return 2160
	default:
		return 0
	}
}

// Exceeds reports whether r is strictly larger than other.
func (r Resolution) Exceeds(other Resolution) bool {
	return r.Rank() > other.Rank()
}

// Quality is the requested encode quality tier.
type Quality string

const (
	QualityLow    Quality = "LOW"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
	QualityUltra  Quality = "ULTRA"
)

var qualityRank = map[Quality]int{
	QualityLow:    1,
	QualityMedium: 2,
	QualityHigh:   3,
	QualityUltra:  4,
}

// Rank orders quality tiers from LOW (1) to ULTRA (4). Unknown values rank 0.
func (q Quality) Rank() int {
	return qualityRank[q]
}

// Watermark overlays text or an image on every frame.
type Watermark struct {
	Text      string  `json:"text,omitempty" validate:"required_without=ImagePath"`
	ImagePath string  `json:"image_path,omitempty"`
	Position  string  `json:"position,omitempty" validate:"omitempty,oneof=top-left top-right bottom-left bottom-right center"`
	Opacity   float64 `json:"opacity,omitempty" validate:"gte=0,lte=1"`
}

// VideoFilter is a single color/effect filter applied to the video track.
type VideoFilter struct {
	Type  string  `json:"type" validate:"required,oneof=brightness contrast saturation blur sharpen grayscale sepia"`
	Value float64 `json:"value,omitempty"`
}

// AudioEnhancement is a single processing step applied to the audio track.
type AudioEnhancement struct {
	Type  string  `json:"type" validate:"required,oneof=normalize noise_reduction compressor equalizer fade_in fade_out"`
	Value float64 `json:"value,omitempty"`
}

// Subtitle controls subtitle rendering.
type Subtitle struct {
	Enabled  bool   `json:"enabled"`
	Source   string `json:"source,omitempty"`
	Language string `json:"language,omitempty"`
	BurnIn   bool   `json:"burn_in,omitempty"`
}

// Settings describes how a timeline is rendered into an export.
//
// FPS zero means "keep the source frame rate". Optional blocks left nil
// (or empty slices) disable the corresponding pipeline stage.
type Settings struct {
	Format            Format             `json:"format" validate:"required,oneof=MP4 WEBM MOV GIF"`
	Resolution        Resolution         `json:"resolution" validate:"required,oneof=SD_480 HD_720 FULL_HD_1080 UHD_4K"`
	Quality           Quality            `json:"quality" validate:"required,oneof=LOW MEDIUM HIGH ULTRA"`
	FPS               int                `json:"fps,omitempty"`
	Watermark         *Watermark         `json:"watermark,omitempty"`
	VideoFilters      []VideoFilter      `json:"video_filters,omitempty" validate:"dive"`
	AudioEnhancements []AudioEnhancement `json:"audio_enhancements,omitempty" validate:"dive"`
	Subtitle          *Subtitle          `json:"subtitle,omitempty"`
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	if s.Watermark != nil {
		wm := *s.Watermark
		out.Watermark = &wm
	}
	if s.Subtitle != nil {
		sub := *s.Subtitle
		out.Subtitle = &sub
	}
	if s.VideoFilters != nil {
		out.VideoFilters = append([]VideoFilter(nil), s.VideoFilters...)
	}
	if s.AudioEnhancements != nil {
		out.AudioEnhancements = append([]AudioEnhancement(nil), s.AudioEnhancements...)
	}
	return out
}

// HasAudioEnhancements reports whether the audio stage is active.
func (s Settings) HasAudioEnhancements() bool { return len(s.AudioEnhancements) > 0 }

// HasVideoFilters reports whether the video filter stage is active.
func (s Settings) HasVideoFilters() bool { return len(s.VideoFilters) > 0 }

// HasWatermark reports whether the watermark stage is active.
func (s Settings) HasWatermark() bool { return s.Watermark != nil }

// HasSubtitles reports whether the subtitle stage is active.
func (s Settings) HasSubtitles() bool { return s.Subtitle != nil && s.Subtitle.Enabled }

// Validate runs struct-level validation and returns a FieldErrors value
// describing every failing field.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

// FieldError describes one failing settings field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// FieldErrors is returned by Validate.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, e.String())
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

// Messages flattens the errors into human readable strings.
func (fe FieldErrors) Messages() []string {
	out := make([]string, 0, len(fe))
	for _, e := range fe {
		out = append(out, e.String())
	}
	return out
}

func toFieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:  strings.TrimPrefix(fe.Namespace(), "Settings."),
			Reason: describeTag(fe),
		})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "required_without":
		return "required when " + fe.Param() + " is empty"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ","))
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
