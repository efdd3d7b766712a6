package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the archive holds no snapshot for the job id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput covers malformed ids, cursors, filters and config.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("backend is closed")
)

// NotFoundError names the job id that has no archived snapshot.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("archived job %q not found", e.JobID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidInputError reports which field of a request or config was
// rejected.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// NewNotFoundError returns a *NotFoundError for jobID.
func NewNotFoundError(jobID string) error {
	return &NotFoundError{JobID: jobID}
}

// NewInvalidInputError returns an *InvalidInputError.
func NewInvalidInputError(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
