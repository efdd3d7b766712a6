// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"os"

	"github.com/framecast/framecast/cmd/framecast/commands"
)

// main runs the framecast CLI. Commands print their own failure summary, so
// main only maps the returned error to a process exit code.
//
// Exit codes:
//   - 0: Success
//   - 1: General error (default)
//   - 2: Invalid usage/input (missing input, invalid settings, invalid port)
//   - 4: Not found (archived job does not exist)
//   - 7: Service unavailable (archive or cache disabled, storage init failed)
//   - 130: Export cancelled by signal
func main() {
	command := commands.NewCommand()

	if err := command.Execute(); err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
