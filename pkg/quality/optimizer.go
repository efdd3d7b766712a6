// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package quality adjusts and validates export settings against a hardware
// snapshot.
//
// Optimize and Validate are pure: they never mutate their input and keep no
// state between calls. Optimizer wraps them with a hardware.Provider so each
// call works on one fresh snapshot.
package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/hardware"
)

// Strategy selects how aggressively settings are traded for render speed.
type Strategy string

const (
	StrategySpeed    Strategy = "SPEED"
	StrategyQuality  Strategy = "QUALITY"
	StrategyBalanced Strategy = "BALANCED"
	StrategyAdaptive Strategy = "ADAPTIVE"
)

// ParseStrategy converts a case-insensitive name into a Strategy. Empty input
// yields ADAPTIVE.
func ParseStrategy(s string) (Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return StrategyAdaptive, nil
	}
	switch st := Strategy(strings.ToUpper(strings.TrimSpace(s))); st {
	case StrategySpeed, StrategyQuality, StrategyBalanced, StrategyAdaptive:
		return st, nil
	default:
		return "", fmt.Errorf("unknown optimization strategy %q", s)
	}
}

// Resolve maps ADAPTIVE onto a concrete strategy for tier. Other strategies
// are returned unchanged.
func (s Strategy) Resolve(tier hardware.Tier) Strategy {
	if s != StrategyAdaptive {
		return s
	}
	switch tier {
	case hardware.TierLow:
		return StrategySpeed
	case hardware.TierUltra:
		return StrategyQuality
	default:
		return StrategyBalanced
	}
}

// Result is the outcome of Optimize.
type Result struct {
	Settings          export.Settings `json:"settings"`
	OriginalSettings  export.Settings `json:"original_settings"`
	RequestedStrategy Strategy        `json:"requested_strategy"`
	Strategy          Strategy        `json:"strategy"`
	Tier              hardware.Tier   `json:"tier"`
	Adjustments       []string        `json:"adjustments"`
}

// Changed reports whether any setting was adjusted.
func (r Result) Changed() bool { return len(r.Adjustments) > 0 }

type adjuster struct {
	s       export.Settings
	reasons []string
}

func (a *adjuster) note(format string, args ...any) {
	a.reasons = append(a.reasons, fmt.Sprintf(format, args...))
}

func (a *adjuster) capResolution(limit export.Resolution, why string) {
	if a.s.Resolution.Exceeds(limit) {
		a.note("resolution lowered from %s to %s (%s)", a.s.Resolution, limit, why)
		a.s.Resolution = limit
	}
}

func (a *adjuster) capFPS(limit int, why string) {
	if limit > 0 && a.s.FPS > limit {
		a.note("frame rate lowered from %d to %d fps (%s)", a.s.FPS, limit, why)
		a.s.FPS = limit
	}
}

func (a *adjuster) capQuality(limit export.Quality, why string) {
	if a.s.Quality.Rank() > limit.Rank() {
		a.note("quality lowered from %s to %s (%s)", a.s.Quality, limit, why)
		a.s.Quality = limit
	}
}

func (a *adjuster) raiseQuality(floor export.Quality, why string) {
	if a.s.Quality.Rank() < floor.Rank() {
		a.note("quality raised from %s to %s (%s)", a.s.Quality, floor, why)
		a.s.Quality = floor
	}
}

// Optimize adjusts settings for strategy on the given hardware profile.
func Optimize(settings export.Settings, strategy Strategy, profile hardware.Profile) Result {
	profile = profile.Normalize()
	preset := hardware.PresetFor(profile)
	resolved := strategy.Resolve(profile.Tier)

	a := &adjuster{s: settings.Clone()}

	switch resolved {
	case StrategySpeed:
		speedCap := export.ResolutionFullHD1080
		if profile.Tier == hardware.TierLow {
			speedCap = export.ResolutionHD720
		}
		a.capResolution(speedCap, "speed strategy")
		a.capFPS(30, "speed strategy")
		a.capQuality(export.QualityMedium, "speed strategy")

	case StrategyBalanced:
		a.capResolution(export.ResolutionFullHD1080, "balanced strategy")
		a.capFPS(60, "balanced strategy")
		a.capQuality(export.QualityHigh, "balanced strategy")

	case StrategyQuality:
		a.raiseQuality(export.QualityHigh, "quality strategy")
	}

	tierWhy := fmt.Sprintf("%s hardware tier limit", profile.Tier)
	a.capResolution(preset.MaxResolution, tierWhy)
	a.capFPS(preset.MaxFPS, tierWhy)

	return Result{
		Settings:          a.s,
		OriginalSettings:  settings.Clone(),
		RequestedStrategy: strategy,
		Strategy:          resolved,
		Tier:              profile.Tier,
		Adjustments:       a.reasons,
	}
}

// Optimizer binds the pure functions to a hardware provider.
type Optimizer struct {
	provider hardware.Provider
}

// NewOptimizer creates an Optimizer. A nil provider means "unknown hardware",
// which is treated as the LOW tier.
func NewOptimizer(provider hardware.Provider) *Optimizer {
	if provider == nil {
		provider = hardware.StaticProvider{Profile: hardware.Profile{Tier: hardware.TierLow, CPUCores: 1}}
	}
	return &Optimizer{provider: provider}
}

// Profile returns the current hardware snapshot.
func (o *Optimizer) Profile(ctx context.Context) (hardware.Profile, error) {
	prof, err := o.provider.Detect(ctx)
	if err != nil {
		return hardware.Profile{}, fmt.Errorf("detect hardware: %w", err)
	}
	return prof.Normalize(), nil
}

// Optimize takes a hardware snapshot and adjusts settings for strategy.
func (o *Optimizer) Optimize(ctx context.Context, settings export.Settings, strategy Strategy) (Result, error) {
	prof, err := o.Profile(ctx)
	if err != nil {
		return Result{}, err
	}
	return Optimize(settings, strategy, prof), nil
}

// Validate takes a hardware snapshot and validates settings against it.
func (o *Optimizer) Validate(ctx context.Context, settings export.Settings) (Validation, error) {
	prof, err := o.Profile(ctx)
	if err != nil {
		return Validation{}, err
	}
	return Validate(settings, prof), nil
}
