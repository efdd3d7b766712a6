package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/quality"
	"github.com/framecast/framecast/pkg/queue"
	"github.com/framecast/framecast/pkg/storage"
)

// ErrBadRequest marks request errors that map to 400. Handler-level
// validation errors match it through errors.Is.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse represents a standard JSON error response.
// Used consistently across all API endpoints for error responses.
//
// Example:
//
//	{
//	  "error": "Unprocessable Entity",
//	  "message": "invalid export settings: resolution 4K exceeds ...",
//	  "issues": ["resolution 4K exceeds the HD_720 limit of a LOW machine"]
//	}
type ErrorResponse struct {
	Error           string   `json:"error"`                     // Short error type (e.g., "Not Found")
	Message         string   `json:"message,omitempty"`         // Detailed error message (optional)
	Issues          []string `json:"issues,omitempty"`          // Validation issues (422 only)
	Recommendations []string `json:"recommendations,omitempty"` // Non-blocking advice (422 only)
}

// WriteError writes a standard JSON error response to the client.
// It determines the HTTP status code from the error:
//   - storage.ErrNotFound, queue.ErrJobNotFound → 404 Not Found
//   - *quality.ValidationError → 422 Unprocessable Entity
//   - ErrBadRequest, storage.ErrInvalidInput → 400 Bad Request
//   - queue state errors → 409 Conflict
//   - context.DeadlineExceeded → 504 Gateway Timeout
//   - All other errors → 500 Internal Server Error
//
// It also logs the error with structured logging for observability.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, errorType := classify(err)
	response := ErrorResponse{
		Error:   errorType,
		Message: err.Error(),
	}

	var verr *quality.ValidationError
	if errors.As(err, &verr) {
		response.Issues = verr.Issues
	}

	logEvent := log.Warn()
	if statusCode >= http.StatusInternalServerError {
		logEvent = log.Error()
	}
	logEvent.
		Str("component", "api").
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", statusCode).
		Err(err).
		Msg("Request failed")

	writeBody(w, statusCode, response)
}

// WriteValidationError answers 422 with the full validation result.
func WriteValidationError(w http.ResponseWriter, v quality.Validation) {
	writeBody(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:           "Unprocessable Entity",
		Message:         quality.ErrInvalidSettings.Error(),
		Issues:          v.Issues,
		Recommendations: v.Recommendations,
	})
}

func classify(err error) (int, string) {
	var verr *quality.ValidationError
	switch {
	case storage.IsNotFound(err), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "Unprocessable Entity"
	case errors.Is(err, ErrBadRequest), storage.IsInvalidInput(err):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrInvalidState),
		errors.Is(err, queue.ErrNotRetryable),
		errors.Is(err, queue.ErrConcurrencyLimit):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Gateway Timeout"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// WriteJSONError writes a custom JSON error response with a specific status code.
// Use this when you need fine-grained control over the error response.
//
// Example:
//
//	WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "job archive is disabled")
func WriteJSONError(w http.ResponseWriter, statusCode int, errorType, message string) {
	writeBody(w, statusCode, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}

func writeBody(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode error response")
	}
}

// WriteJSON writes a JSON response to the client.
// Use this for successful API responses.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode JSON response")
	}
}
