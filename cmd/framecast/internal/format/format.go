// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// OutputMode selects how commands render results.
type OutputMode string

const (
	ModeJSON  OutputMode = "json"
	ModeTable OutputMode = "table"
)

// ErrInvalidMode is returned by ValidateMode for unknown --output values.
var ErrInvalidMode = errors.New("invalid output mode")

// ValidateMode accepts exactly "json" and "table".
func ValidateMode(mode string) error {
	if m := OutputMode(mode); m == ModeJSON || m == ModeTable {
		return nil
	}
	return fmt.Errorf("%w: %s (must be 'json' or 'table')", ErrInvalidMode, mode)
}

// ParseMode maps a flag value to a mode, falling back to table.
func ParseMode(mode string) OutputMode {
	if strings.EqualFold(mode, string(ModeJSON)) {
		return ModeJSON
	}
	return ModeTable
}

// Formatter is what every command prints through. In JSON mode stdout
// carries only machine-readable documents and human text goes to stderr.
type Formatter interface {
	PrintJSON(data any) error
	// PrintTable renders rows under upper-cased headers. In JSON mode
	// each row becomes an object keyed by header.
	PrintTable(headers []string, rows [][]string) error
	// PrintPanel renders a titled key/value block, or data in JSON mode.
	PrintPanel(title string, fields [][2]string, data any) error
	// PrintSummary writes a one-line note unless quiet.
	PrintSummary(message string) error
	PrintError(err error) error
	// PrintSuccessSummary prints "<operation> completed". In quiet mode
	// only detail is printed so scripts can capture it.
	PrintSuccessSummary(operation, subject, detail string) error
	// PrintTotalFailureSummary prints a failed operation with the hints
	// registered for errorCode.
	PrintTotalFailureSummary(operation string, err error, errorCode string) error
	IsJSON() bool
}

type formatter struct {
	stdout, stderr io.Writer
	mode           OutputMode
	quiet, color   bool
}

// New returns a Formatter writing to stdout and stderr.
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{stdout: stdout, stderr: stderr, mode: mode, quiet: quiet, color: color}
}

func (f *formatter) IsJSON() bool { return f.mode == ModeJSON }

// paint applies attrs when color is on.
func (f *formatter) paint(s string, attrs ...color.Attribute) string {
	if !f.color {
		return s
	}
	return color.New(attrs...).Sprint(s)
}

func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.IsJSON() {
		return f.PrintJSON(rowObjects(headers, rows))
	}

	tw := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)
	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = f.paint(strings.ToUpper(h), color.Bold)
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func rowObjects(headers []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, len(rows))
	for r, row := range rows {
		obj := make(map[string]string, len(headers))
		for i := 0; i < len(headers) && i < len(row); i++ {
			obj[headers[i]] = row[i]
		}
		out[r] = obj
	}
	return out
}

var (
	panelTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	panelKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func (f *formatter) PrintPanel(title string, fields [][2]string, data any) error {
	if f.IsJSON() {
		return f.PrintJSON(data)
	}

	width := 0
	for _, kv := range fields {
		width = max(width, len(kv[0]))
	}
	var b strings.Builder
	for i, kv := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		key := fmt.Sprintf("%-*s", width, kv[0])
		if f.color {
			key = panelKey.Render(key)
		}
		b.WriteString(key + "  " + kv[1])
	}

	if f.color {
		_, err := fmt.Fprintln(f.stdout, panelBox.Render(panelTitle.Render(title)+"\n"+b.String()))
		return err
	}
	_, err := fmt.Fprintf(f.stdout, "%s\n%s\n", title, b.String())
	return err
}

func (f *formatter) PrintSummary(message string) error {
	if f.quiet {
		return nil
	}
	w := f.stdout
	if f.IsJSON() {
		w = f.stderr
	} else {
		message = f.paint(message, color.FgGreen)
	}
	_, err := fmt.Fprintln(w, message)
	return err
}

func (f *formatter) PrintError(err error) error {
	if err == nil {
		return nil
	}
	if f.IsJSON() {
		return f.PrintJSON(map[string]any{"success": false, "error": err.Error()})
	}
	_, werr := fmt.Fprintln(f.stderr, f.paint("Error: "+err.Error(), color.FgRed))
	return werr
}
