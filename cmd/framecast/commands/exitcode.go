package commands

import (
	"errors"

	"github.com/framecast/framecast/cmd/framecast/internal/format"
	"github.com/framecast/framecast/pkg/exportexec"
	"github.com/framecast/framecast/pkg/server"
	"github.com/framecast/framecast/pkg/storage"
)

// ExitCode maps an error returned by a framecast command to a process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case exportexec.IsExportError(err):
		return exportexec.ExitCode(err)
	case errors.Is(err, storage.ErrNotFound):
		return 4
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, format.ErrInvalidMode):
		return 2
	case errors.Is(err, errArchiveDisabled), errors.Is(err, errCacheDisabled):
		return 7
	default:
		return server.ExitCode(err)
	}
}
