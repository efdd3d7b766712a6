package exportexec

import (
	"errors"

	"github.com/framecast/framecast/pkg/quality"
)

// Sentinel errors for common CLI failures.
var (
	// ErrNoInput indicates that no timeline source was supplied.
	ErrNoInput = errors.New("no input file specified")

	// ErrExportFailed indicates the job reached FAILED.
	ErrExportFailed = errors.New("export failed")

	// ErrCancelled indicates the job was cancelled before it finished.
	ErrCancelled = errors.New("export cancelled")
)

// Error codes for export failures used by CLI suggestion system.
const (
	errorCodeInputRequired   = "EXPORT_INPUT_REQUIRED"
	errorCodeInvalidSettings = "EXPORT_INVALID_SETTINGS"
	errorCodeExportFailed    = "EXPORT_FAILED"
	errorCodeCancelled       = "EXPORT_CANCELLED"
)

// codedError wraps an error with an explicit error code.
type codedError struct {
	error
	code string
}

func (e *codedError) Error() string {
	return e.error.Error()
}

func (e *codedError) Unwrap() error {
	return e.error
}

func (e *codedError) Code() string {
	return e.code
}

// WithErrorCode wraps err with a specific CLI error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves an export error into a CLI error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrNoInput):
		return errorCodeInputRequired
	case errors.Is(err, quality.ErrInvalidSettings):
		return errorCodeInvalidSettings
	case errors.Is(err, ErrCancelled):
		return errorCodeCancelled
	}

	return errorCodeExportFailed
}

// IsExportError reports whether err came out of an export run.
func IsExportError(err error) bool {
	var coded *codedError
	return errors.As(err, &coded) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrExportFailed) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, quality.ErrInvalidSettings)
}

// ExitCode maps export errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInputRequired,
		errorCodeInvalidSettings:
		return 2
	case errorCodeCancelled:
		return 130
	default:
		return 1
	}
}
