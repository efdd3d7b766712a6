package storage

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// Cursor marks the last job of a page. Pages are ordered newest first by
// (CreatedAt, ID).
type Cursor struct {
	LastJobID string
	LastTime  int64 // CreatedAt in Unix nanoseconds
}

// after reports whether a job created at t with id sorts after c.
func (c *Cursor) after(t time.Time, id string) bool {
	if c == nil {
		return true
	}
	if ts := t.UnixNano(); ts != c.LastTime {
		return ts < c.LastTime
	}
	return id < c.LastJobID
}

// EncodeCursor renders c as an opaque URL-safe token. A nil cursor or
// one without a job id encodes to "".
func EncodeCursor(c *Cursor) string {
	if c == nil || c.LastJobID == "" {
		return ""
	}
	raw := strconv.FormatInt(c.LastTime, 10) + ":" + c.LastJobID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from EncodeCursor. The empty token means
// the first page and yields (nil, nil). Malformed tokens return an
// InvalidInputError for field "cursor".
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, NewInvalidInputError("cursor", "bad encoding")
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, NewInvalidInputError("cursor", "missing job id")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, NewInvalidInputError("cursor", "bad timestamp")
	}
	return &Cursor{LastJobID: id, LastTime: nanos}, nil
}
