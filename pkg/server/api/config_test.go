package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, int64(8<<20), cfg.MaxBodyBytes)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []error
	}{
		{"zero disables limits", Config{}, nil},
		{"negative timeout", Config{HandlerTimeout: -time.Second}, []error{ErrInvalidTimeout}},
		{"negative body", Config{MaxBodyBytes: -1}, []error{ErrInvalidBodySize}},
		{"both", Config{HandlerTimeout: -1, MaxBodyBytes: -1}, []error{ErrInvalidTimeout, ErrInvalidBodySize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, w := range tt.want {
				assert.ErrorIs(t, err, w)
			}
		})
	}
}

func TestConfig_WithTimeout(t *testing.T) {
	cfg := Config{HandlerTimeout: time.Minute}

	ctx, cancel := cfg.WithTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	parent, cancelParent := context.WithTimeout(context.Background(), time.Second)
	defer cancelParent()
	ctx, cancel = cfg.WithTimeout(parent)
	defer cancel()
	got, _ := ctx.Deadline()
	want, _ := parent.Deadline()
	assert.Equal(t, want, got, "existing deadline kept")

	ctx, cancel = Config{}.WithTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok, "zero timeout adds no deadline")
}

func TestConfig_LimitBody(t *testing.T) {
	read := func(cfg Config, body string) error {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/exports", strings.NewReader(body))
		cfg.LimitBody(httptest.NewRecorder(), r)
		_, err := io.ReadAll(r.Body)
		return err
	}

	assert.NoError(t, read(Config{MaxBodyBytes: 8}, "12345678"))

	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, read(Config{MaxBodyBytes: 4}, "12345678"), &tooLarge)

	assert.NoError(t, read(Config{}, strings.Repeat("x", 1<<10)), "zero disables the cap")
}
