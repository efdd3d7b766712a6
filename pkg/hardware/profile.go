// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package hardware describes the compute capabilities a render runs on and
// the quality preset derived from them.
//
// Detection itself is outside this package: a Provider hands out snapshots
// that come from static values, configuration or a watched profile file.
package hardware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/framecast/framecast/pkg/export"
)

// Tier is the coarse compute class of a machine.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
	TierUltra  Tier = "ULTRA"
)

// ParseTier converts a case-insensitive name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierLow, TierMedium, TierHigh, TierUltra:
		return t, nil
	default:
		return "", fmt.Errorf("unknown hardware tier %q", s)
	}
}

// GPU describes the graphics adapter, if any.
type GPU struct {
	Available bool    `json:"available" yaml:"available"`
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	MemoryGB  float64 `json:"memory_gb,omitempty" yaml:"memory_gb,omitempty"`
}

// Profile is a read-only capability snapshot.
type Profile struct {
	CPUCores   int       `json:"cpu_cores"`
	MemoryGB   float64   `json:"memory_gb"`
	GPU        GPU       `json:"gpu"`
	Tier       Tier      `json:"tier"`
	DetectedAt time.Time `json:"detected_at"`
}

// Provider supplies hardware snapshots.
type Provider interface {
	Detect(ctx context.Context) (Profile, error)
}

// DeriveTier classifies a machine from its raw capabilities.
func DeriveTier(cores int, memoryGB float64, gpu bool) Tier {
	switch {
	case gpu && cores >= 16 && memoryGB >= 32:
		return TierUltra
	case cores >= 8 && memoryGB >= 16:
		return TierHigh
	case cores >= 4 && memoryGB >= 8:
		return TierMedium
	default:
		return TierLow
	}
}

// Normalize fills the tier from the raw capabilities when it was not given
// explicitly.
func (p Profile) Normalize() Profile {
	if p.Tier == "" {
		p.Tier = DeriveTier(p.CPUCores, p.MemoryGB, p.GPU.Available)
	}
	if p.DetectedAt.IsZero() {
		p.DetectedAt = time.Now()
	}
	return p
}

// Preset is the render envelope a tier can sustain.
type Preset struct {
	Tier           Tier              `json:"tier"`
	MaxResolution  export.Resolution `json:"max_resolution"`
	MaxFPS         int               `json:"max_fps"`
	MaxBitrateKbps int               `json:"max_bitrate_kbps"`
	Threads        int               `json:"threads"`
	UseGPU         bool              `json:"use_gpu"`
}

var presets = map[Tier]Preset{
	TierLow:    {Tier: TierLow, MaxResolution: export.ResolutionHD720, MaxFPS: 30, MaxBitrateKbps: 4000},
	TierMedium: {Tier: TierMedium, MaxResolution: export.ResolutionFullHD1080, MaxFPS: 30, MaxBitrateKbps: 8000},
	TierHigh:   {Tier: TierHigh, MaxResolution: export.ResolutionFullHD1080, MaxFPS: 60, MaxBitrateKbps: 16000},
	TierUltra:  {Tier: TierUltra, MaxResolution: export.ResolutionUHD4K, MaxFPS: 60, MaxBitrateKbps: 40000},
}

// PresetFor derives the quality preset for a profile.
func PresetFor(p Profile) Preset {
	p = p.Normalize()
	preset, ok := presets[p.Tier]
	if !ok {
		preset = presets[TierLow]
	}
	preset.Threads = max(1, p.CPUCores-1)
	preset.UseGPU = p.GPU.Available && p.Tier != TierLow
	return preset
}

// StaticProvider always returns the same profile.
type StaticProvider struct {
	Profile Profile
}

// Detect implements Provider.
func (s StaticProvider) Detect(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	return s.Profile.Normalize(), nil
}
