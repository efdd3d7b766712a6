package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrInvalidTimeout  = errors.New("invalid handler timeout: must be >= 0")
	ErrInvalidBodySize = errors.New("invalid max body size: must be >= 0")
)

// Config bounds what a single API request may cost.
type Config struct {
	// HandlerTimeout caps handler work when the request has no deadline
	// yet. Zero disables it. Archive reads are the slowest path.
	HandlerTimeout time.Duration

	// MaxBodyBytes caps POST bodies. Timeline data is the only large
	// field. Zero disables the cap.
	MaxBodyBytes int64
}

// DefaultConfig returns the limits the server runs with.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 30 * time.Second,
		MaxBodyBytes:   8 << 20,
	}
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	return errors.Join(
		nonNegative(int64(c.HandlerTimeout), ErrInvalidTimeout),
		nonNegative(c.MaxBodyBytes, ErrInvalidBodySize),
	)
}

func nonNegative(v int64, err error) error {
	if v < 0 {
		return err
	}
	return nil
}

// WithTimeout derives the handler context. An existing deadline on ctx
// is kept as is.
func (c Config) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.HandlerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.HandlerTimeout)
}

// LimitBody replaces r.Body with a reader that fails past MaxBodyBytes.
func (c Config) LimitBody(w http.ResponseWriter, r *http.Request) {
	if c.MaxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, c.MaxBodyBytes)
	}
}
