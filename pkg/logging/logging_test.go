package logging

import (
	"bytes"
	"encoding/json"
	"io"
	stdlog "log"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	level, logger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
		stdlog.SetOutput(io.Discard)
	})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestSetup_Levels(t *testing.T) {
	restoreGlobals(t)
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		require.NoError(t, Setup(Options{Level: tt.in, Out: io.Discard}))
		assert.Equal(t, tt.want, zerolog.GlobalLevel(), "level %q", tt.in)
	}
}

func TestSetup_UnknownLevel(t *testing.T) {
	restoreGlobals(t)
	before := zerolog.GlobalLevel()

	err := Setup(Options{Level: "loud", Out: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"loud"`)
	assert.Equal(t, before, zerolog.GlobalLevel())
}

func TestSetup_JSON(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "info", Format: "json", Out: &buf}))

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Info().Str("job_id", "j1").Msg("queued")
	entry := decode(t, &buf)
	assert.Equal(t, "queued", entry["message"])
	assert.Equal(t, "j1", entry["job_id"])
	assert.Contains(t, entry, "time")
	assert.NotContains(t, entry, "caller")
}

func TestSetup_ConsoleAndCaller(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "debug", Format: "text", Out: &buf}))

	log.Debug().Msg("tick")
	assert.Contains(t, buf.String(), "tick")
	assert.Contains(t, buf.String(), "logging_test.go")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestComponent(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "info", Format: "json", Out: &buf}))

	componentLog := Component("queue")
	componentLog.Info().Msg("dispatch")
	assert.Equal(t, "queue", decode(t, &buf)["component"])
}

func TestStdlogBridge(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "debug", Format: "json", Out: &buf}))

	stdlog.Print("http: accept error")
	entry := decode(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "stdlog", entry["source"])
	assert.Equal(t, "http: accept error", entry["message"])
}
