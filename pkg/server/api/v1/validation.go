package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/framecast/framecast/pkg/export"
	"github.com/framecast/framecast/pkg/server/api"
	"github.com/framecast/framecast/pkg/storage"
)

var validate = validator.New()

// ListExportsQuery represents supported query params for GET /api/v1/exports
type ListExportsQuery struct {
	UserID    string
	ProjectID string
	Status    export.Status
	Limit     int
	Archived  bool   // read from the job archive instead of the live queue
	Cursor    string // Opaque archive cursor (empty for first page)
}

// ParseListExportsQuery parses and validates query params.
// Returns validated query with sane defaults (Limit=50) when omitted.
func ParseListExportsQuery(r *http.Request) (*ListExportsQuery, error) {
	q := r.URL.Query()
	res := ListExportsQuery{
		UserID:    strings.TrimSpace(q.Get("user")),
		ProjectID: strings.TrimSpace(q.Get("project")),
	}

	if v := strings.TrimSpace(q.Get("status")); v != "" {
		v = strings.ToUpper(v)
		if err := validate.Var(v, "oneof=PENDING PROCESSING COMPLETED FAILED CANCELLED"); err != nil {
			return nil, &ValidationError{Field: "status", Reason: "must be one of: PENDING,PROCESSING,COMPLETED,FAILED,CANCELLED"}
		}
		res.Status = export.Status(v)
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		if err := validate.Var(n, "min=1,max=100"); err != nil {
			return nil, &ValidationError{Field: "limit", Reason: "must be between 1 and 100"}
		}
		res.Limit = n
	}

	if v := strings.TrimSpace(q.Get("archived")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ValidationError{Field: "archived", Reason: "must be a boolean"}
		}
		res.Archived = b
	}

	if v := strings.TrimSpace(q.Get("cursor")); v != "" {
		if !res.Archived {
			return nil, &ValidationError{Field: "cursor", Reason: "only supported with archived=true"}
		}
		if _, err := storage.DecodeCursor(v); err != nil {
			return nil, &ValidationError{Field: "cursor", Reason: "malformed"}
		}
		res.Cursor = v
	}

	// Defaults
	if res.Limit == 0 {
		res.Limit = 50
	}

	return &res, nil
}

// ParseExportRequest decodes a job creation body. Owner and settings
// validation is left to the exporter so that every issue is reported at
// once.
func ParseExportRequest(r *http.Request) (export.Request, error) {
	var req export.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, &ValidationError{Field: "body", Reason: "required"}
		}
		return req, &ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if len(req.TimelineData) > 0 && !json.Valid(req.TimelineData) {
		return req, &ValidationError{Field: "timeline_data", Reason: "must be JSON"}
	}
	return req, nil
}

// ValidateJobID rejects ids that cannot name a job.
func ValidateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if err := validate.Var(id, "max=128,printascii,excludesall=/\\"); err != nil {
		return &ValidationError{Field: "id", Reason: "invalid format"}
	}
	return nil
}

// ValidationError is a lightweight error used for 400 responses.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

// Is makes validation errors answer 400 through api.WriteError.
func (e *ValidationError) Is(target error) bool {
	return target == api.ErrBadRequest
}
