package server

import (
	"errors"
	"fmt"
)

const (
	errorCodeInvalidPort        = "SERVER_INVALID_PORT"
	errorCodeInvalidConcurrency = "SERVER_INVALID_CONCURRENCY"
	errorCodeFeaturesDisabled   = "SERVER_FEATURES_DISABLED"
	errorCodeConfigUnavailable  = "SERVER_CONFIG_UNAVAILABLE"
	errorCodeInvalidConfig      = "SERVER_INVALID_CONFIG"
	errorCodeStorageInitFailed  = "SERVER_STORAGE_INIT_FAILED"
	errorCodeCacheInitFailed    = "SERVER_CACHE_INIT_FAILED"
	errorCodeAppInitFailed      = "SERVER_INIT_FAILED"
	errorCodeRuntimeFailed      = "SERVER_RUNTIME_FAILED"
)

var (
	// ErrInvalidPort is returned for a server.port outside 0-65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrInvalidConcurrency is returned for queue.max_concurrent below 1.
	ErrInvalidConcurrency = errors.New("invalid queue concurrency")
	// ErrFeaturesDisabled is returned when neither the API nor the dispatch
	// loop is enabled.
	ErrFeaturesDisabled = errors.New("api and dispatch loop both disabled")
	// ErrConfigUnavailable is returned when no config manager was loaded.
	ErrConfigUnavailable = errors.New("config manager unavailable")
)

// codeInfo is what the CLI needs to know about one error code.
type codeInfo struct {
	exit  int
	hints []string
}

var codes = map[string]codeInfo{
	errorCodeInvalidPort: {exit: 2, hints: []string{
		"Use a port between 1 and 65535, or 0 for any free port",
		"Example:                 framecast server start --server.port 8080",
	}},
	errorCodeInvalidConcurrency: {exit: 2, hints: []string{
		"Set queue concurrency to at least 1",
		"Example:                 framecast server start --queue.max_concurrent 2",
	}},
	errorCodeFeaturesDisabled: {exit: 2, hints: []string{
		"Enable either the API or the dispatch loop",
		"Remove one of --server.api_enabled=false / --server.jobs_enabled=false",
	}},
	errorCodeConfigUnavailable: {exit: 1, hints: []string{
		"Run via the framecast CLI so the config manager initializes",
	}},
	errorCodeInvalidConfig: {exit: 2, hints: []string{
		"Check configuration values in config file",
		"Retry with --debug for detailed validation errors",
	}},
	errorCodeStorageInitFailed: {exit: 7, hints: []string{
		"Verify storage.workspace_root permissions or storage.database_url",
		"Disable the archive:      FRAMECAST_STORAGE_BACKEND=none",
	}},
	errorCodeCacheInitFailed: {exit: 7, hints: []string{
		"Check cache.dir access or that cache.redis_addr is reachable",
		"Fall back to memory:      FRAMECAST_CACHE_BACKEND=memory",
	}},
	errorCodeAppInitFailed: {exit: 7, hints: []string{
		"Retry with verbose logging: framecast server start --debug",
	}},
	errorCodeRuntimeFailed: {exit: 1, hints: []string{
		"Check server logs for runtime errors",
		"Ensure no other process is using the selected port",
	}},
}

// sentinels resolves uncoded errors by identity.
var sentinels = []struct {
	err  error
	code string
}{
	{ErrInvalidPort, errorCodeInvalidPort},
	{ErrInvalidConcurrency, errorCodeInvalidConcurrency},
	{ErrFeaturesDisabled, errorCodeFeaturesDisabled},
	{ErrConfigUnavailable, errorCodeConfigUnavailable},
}

type codedError struct {
	err  error
	code string
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }
func (e *codedError) Code() string  { return e.code }

// WithErrorCode attaches code to err. A nil err stays nil.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{err: err, code: code}
}

func NewInvalidPortError(port int) error {
	return WithErrorCode(fmt.Errorf("%w %d (want 0-65535)", ErrInvalidPort, port), errorCodeInvalidPort)
}

func NewInvalidConcurrencyError(n int) error {
	return WithErrorCode(fmt.Errorf("%w %d (want at least 1)", ErrInvalidConcurrency, n), errorCodeInvalidConcurrency)
}

func NewFeaturesDisabledError() error {
	return WithErrorCode(fmt.Errorf("%w: enable server.api_enabled or server.jobs_enabled", ErrFeaturesDisabled), errorCodeFeaturesDisabled)
}

// WrapInvalidConfig marks err as a configuration problem.
func WrapInvalidConfig(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("invalid configuration: %w", err), errorCodeInvalidConfig)
}

// WrapStorageInit marks a job archive that could not be opened.
func WrapStorageInit(err error) error { return WithErrorCode(err, errorCodeStorageInitFailed) }

// WrapCacheInit marks a render cache that could not be opened.
func WrapCacheInit(err error) error { return WithErrorCode(err, errorCodeCacheInitFailed) }

// WrapAppInit marks a runtime component that could not be created.
func WrapAppInit(err error) error { return WithErrorCode(err, errorCodeAppInitFailed) }

// WrapRuntime marks a failure of a running server.
func WrapRuntime(err error) error { return WithErrorCode(err, errorCodeRuntimeFailed) }

// ErrorCode returns the code attached to err, falling back to the sentinel
// it wraps and then to SERVER_RUNTIME_FAILED.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) && coded.Code() != "" {
		return coded.Code()
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return errorCodeRuntimeFailed
}

// ExitCode maps err to a CLI exit code: 2 for invalid input, 7 for
// unavailable dependencies, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if info, ok := codes[ErrorCode(err)]; ok {
		return info.exit
	}
	return 1
}

// Suggestions returns CLI hints for err's code.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}
	return SuggestionsFor(ErrorCode(err))
}

// SuggestionsFor returns the hints registered for a SERVER_* code.
func SuggestionsFor(code string) []string {
	return codes[code].hints
}
