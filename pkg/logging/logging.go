// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level, encoding and destination for Setup.
type Options struct {
	Level  string    // zerolog level name; empty means error
	Format string    // "json" or anything else for the console writer
	Out    io.Writer // defaults to os.Stderr
}

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	log.Logger = zerolog.New(console(os.Stderr)).With().Timestamp().Logger()
}

// Configure applies log.level and log.format, writing to stderr.
func Configure(level, format string) error {
	return Setup(Options{Level: level, Format: format})
}

// Setup replaces the global logger. Debug and trace levels add caller
// information. Output from the standard library log package is
// re-emitted at debug level.
func Setup(opts Options) error {
	level := zerolog.ErrorLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("unknown log level %q", opts.Level)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(opts.Format, "json") {
		out = console(out)
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		zctx = zctx.Caller()
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zctx.Logger()
	zerolog.DefaultContextLogger = &log.Logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(stdBridge{logger: log.Logger})
	return nil
}

// Component returns the global logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func console(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// stdBridge feeds lines from the standard log package (net/http server
// errors mostly) into zerolog.
type stdBridge struct {
	logger zerolog.Logger
}

func (b stdBridge) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\r\n")
	if msg != "" {
		b.logger.Debug().Str("source", "stdlog").Msg(msg)
	}
	return len(p), nil
}
