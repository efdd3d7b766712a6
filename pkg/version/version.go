// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Masterminds/semver/v3"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of framecast.
	Version = "dev"
	// Commit holds the current version commit of framecast.
	Commit = "none"
	// BuildDate holds the build date of framecast.
	BuildDate = "unknown"
	// StartDate holds the start date of framecast.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
	Prerelease bool   `json:"prerelease"`
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("Framecast %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns version information as a Struct. Semantic versions are
// normalized ("v1.2.0" becomes "1.2.0"); anything else is reported as is
// and counts as a prerelease.
func Get() Struct {
	s := Struct{
		Version:    Version,
		Commit:     Commit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Prerelease: true,
	}
	if v, err := semver.NewVersion(Version); err == nil {
		s.Version = v.String()
		s.Prerelease = v.Prerelease() != ""
	}
	return s
}

// Newer reports whether candidate is a newer release than the running
// version. Prereleases are ignored unless the running version is one.
func Newer(candidate string) (bool, error) {
	next, err := semver.NewVersion(candidate)
	if err != nil {
		return false, fmt.Errorf("parse candidate version %q: %w", candidate, err)
	}
	current, err := semver.NewVersion(Version)
	if err != nil {
		// Development builds are never behind.
		return false, nil
	}
	if current.Prerelease() == "" && next.Prerelease() != "" {
		return false, nil
	}
	return next.GreaterThan(current), nil
}
