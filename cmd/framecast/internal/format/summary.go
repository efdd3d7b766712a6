// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/framecast/framecast/pkg/server"
)

// PrintSuccessSummary prints one of
//
//	✓ Exported 3f2a…: /exports/out.mp4
//	✓ Cache clear completed
func (f *formatter) PrintSuccessSummary(operation, subject, detail string) error {
	if f.quiet {
		if detail == "" {
			return nil
		}
		_, err := fmt.Fprintln(f.stdout, detail)
		return err
	}
	if f.IsJSON() {
		return f.PrintJSON(map[string]any{
			"success":   true,
			"operation": operation,
			"subject":   subject,
			"detail":    detail,
		})
	}

	msg := "✓ " + capitalize(operation) + " completed"
	if subject != "" && detail != "" {
		msg = fmt.Sprintf("✓ %s %s: %s", capitalize(operation), subject, detail)
	}
	_, err := fmt.Fprintln(f.stdout, f.paint(msg, color.FgGreen))
	return err
}

// PrintTotalFailureSummary writes the failure and its hints to stderr:
//
//	✗ Failed to start server: invalid port 70000
//
//	💡 Suggestions:
//	  → Use a port between 1 and 65535, or 0 for any free port
func (f *formatter) PrintTotalFailureSummary(operation string, err error, errorCode string) error {
	if f.quiet {
		return nil
	}
	if f.IsJSON() {
		return f.PrintJSON(map[string]any{
			"success":    false,
			"operation":  operation,
			"error":      err.Error(),
			"error_code": errorCode,
		})
	}

	var b strings.Builder
	b.WriteString(f.paint(fmt.Sprintf("✗ Failed to %s: %v", operation, err), color.FgRed))
	b.WriteByte('\n')
	if hints := GetSuggestions(errorCode); len(hints) > 0 {
		b.WriteString("\n💡 Suggestions:\n")
		for _, h := range hints {
			b.WriteString("  → " + h + "\n")
		}
	}
	_, werr := io.WriteString(f.stderr, b.String())
	return werr
}

// cliHints covers codes raised by the CLI itself. SERVER_* codes are
// answered by the server package.
var cliHints = map[string][]string{
	"EXPORT_INPUT_REQUIRED": {
		"Provide a source:          framecast export --input <file>",
	},
	"EXPORT_INVALID_SETTINGS": {
		"Preview adjustments:       framecast optimize --resolution <r> --fps <n>",
		"Check hardware limits:     framecast hardware",
	},
	"EXPORT_FAILED": {
		"Retry with debug logs:     framecast export --input <file> --debug",
		"Check the work and output directories are writable",
	},
	"EXPORT_CANCELLED": {
		"Run the export again when ready",
	},
	"ARCHIVE_DISABLED": {
		"Enable the archive:        --storage.backend local",
		"Or set storage.backend in the config file",
	},
	"ARCHIVE_NOT_FOUND": {
		"List archived jobs:        framecast archive list",
	},
	"ARCHIVE_INVALID_INPUT": {
		"Valid statuses: PENDING, PROCESSING, COMPLETED, FAILED, CANCELLED",
		"Pass the cursor printed by the previous page unchanged",
	},
	"CACHE_DISABLED": {
		"Enable the cache:          --cache.backend memory",
	},
	"CACHE_UNAVAILABLE": {
		"Check the cache store is reachable (cache.dir or cache.redis_addr)",
		"Retry with debug logs:     framecast cache stats --debug",
	},
}

// GetSuggestions returns the hints for errorCode, or nil.
func GetSuggestions(errorCode string) []string {
	if hints, ok := cliHints[errorCode]; ok {
		return hints
	}
	return server.SuggestionsFor(errorCode)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
