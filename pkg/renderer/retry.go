// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package renderer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// RetryConfig defines how render calls to a remote service are retried.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first one.
	// Zero means a single call.
	MaxAttempts int

	// InitialWait is the wait before the first retry.
	InitialWait time.Duration

	// MaxWait caps the wait between retries.
	MaxWait time.Duration

	// Multiplier for exponential backoff (must be >= 1.0).
	Multiplier float64

	// Jitter adds up to ±25% randomness to each wait.
	Jitter bool
}

// DefaultRetryConfig returns 3 attempts with exponential backoff and jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Validate checks if the retry config is valid.
func (rc RetryConfig) Validate() error {
	if rc.MaxAttempts < 0 {
		return fmt.Errorf("MaxAttempts must be >= 0, got %d", rc.MaxAttempts)
	}
	if rc.MaxAttempts <= 1 {
		return nil
	}
	if rc.InitialWait < 0 {
		return fmt.Errorf("InitialWait must be >= 0, got %v", rc.InitialWait)
	}
	if rc.MaxWait < 0 {
		return fmt.Errorf("MaxWait must be >= 0, got %v", rc.MaxWait)
	}
	if rc.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", rc.Multiplier)
	}
	if rc.MaxWait > 0 && rc.InitialWait > rc.MaxWait {
		return fmt.Errorf("InitialWait (%v) must be <= MaxWait (%v)", rc.InitialWait, rc.MaxWait)
	}
	return nil
}

// wait returns the backoff before retry number n (1-based).
func (rc RetryConfig) wait(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	w := float64(rc.InitialWait) * math.Pow(rc.Multiplier, float64(n-1))
	if rc.MaxWait > 0 && w > float64(rc.MaxWait) {
		w = float64(rc.MaxWait)
	}
	if rc.Jitter {
		spread := w * 0.25
		w += rand.Float64()*2*spread - spread
	}
	if w < 0 {
		w = 0
	}
	return time.Duration(w)
}

// StatusError is returned when the render service answers with a non-2xx
// status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("render service returned status %d", e.Code)
	}
	return fmt.Sprintf("render service returned status %d: %s", e.Code, e.Body)
}

// retryable reports whether err is worth another attempt: timeouts, refused
// or reset connections, 429 and 502-504 responses.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// the attempts are used up.
func withRetry(ctx context.Context, rc RetryConfig, fn func(ctx context.Context, attempt int) error) error {
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	attempts := max(rc.MaxAttempts, 1)

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, attempt+1)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(rc.wait(attempt + 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}
