// Package renderer provides pipeline.Renderer implementations.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/framecast/framecast/pkg/pipeline"
)

// Render modes accepted by New.
const (
	ModePassthrough = "passthrough"
	ModeHTTP        = "http"
)

// ErrUnknownMode is returned by New for an unsupported renderer.mode.
var ErrUnknownMode = errors.New("unknown renderer mode")

// Config holds the renderer.* settings.
type Config struct {
	Mode          string
	URL           string
	Token         string
	Timeout       time.Duration
	RetryAttempts int
}

// New builds the renderer selected by cfg.Mode.
func New(cfg Config) (pipeline.Renderer, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", ModePassthrough:
		return Passthrough{}, nil
	case ModeHTTP:
		retry := DefaultRetryConfig()
		if cfg.RetryAttempts > 0 {
			retry.MaxAttempts = cfg.RetryAttempts
		}
		c := NewHTTPClient(cfg.URL, cfg.Timeout, retry)
		c.Token = cfg.Token
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// Passthrough copies the stage input to the stage output and reports
// progress by bytes copied. It stands in for a real encoder in local runs.
type Passthrough struct {
	// ChunkSize controls how often progress is reported. Zero means 1 MiB.
	ChunkSize int
}

// Render implements pipeline.Renderer.
func (p Passthrough) Render(ctx context.Context, req pipeline.RenderRequest, onProgress func(float64, string)) (string, error) {
	src, err := os.Open(req.InputPath)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input %s is a directory", req.InputPath)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dst, err := os.Create(req.OutputPath)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}

	if err := p.copy(ctx, dst, src, info.Size(), string(req.Stage), onProgress); err != nil {
		_ = dst.Close()
		_ = os.Remove(req.OutputPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	return req.OutputPath, nil
}

func (p Passthrough) copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, stage string, onProgress func(float64, string)) error {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = 1 << 20
	}
	buf := make([]byte, chunk)
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			done += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(done)*100/float64(total), strings.ToLower(stage))
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read input: %w", readErr)
		}
	}
	if onProgress != nil {
		onProgress(100, strings.ToLower(stage))
	}
	return nil
}
