package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(Config{Level: slog.LevelDebug, Format: "json", Writer: &buf})
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestContextLogging(t *testing.T) {
	buf := captureLogger(t)

	ctx := WithPoolKey(context.Background(), "default")
	ctx = WithContextValue(ctx, ConnIDKey, "c-1")
	ctx = WithContextValue(ctx, RequestIDKey, "req789")

	InfoContext(ctx, "acquired", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "acquired", entry["msg"])
	assert.Equal(t, "default", entry["pool_key"])
	assert.Equal(t, "c-1", entry["conn_id"])
	assert.Equal(t, "req789", entry["request_id"])
	assert.Equal(t, "value", entry["key"])
}

func TestExtractContextValuesNil(t *testing.T) {
	assert.Nil(t, ExtractContextValues(nil))
	assert.Empty(t, ExtractContextValues(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR", slog.LevelInfo))
	assert.Equal(t, slog.Level(2), ParseLevel("2", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus", slog.LevelInfo))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_ADD_SOURCE", "true")

	config := LoadConfig()
	assert.Equal(t, slog.LevelDebug, config.Level)
	assert.Equal(t, "text", config.Format)
	assert.True(t, config.AddSource)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	SetLogger(NewLogger(Config{Level: slog.LevelWarn, Writer: &buf}))

	Debug("hidden")
	Info("hidden")
	assert.Zero(t, buf.Len())

	Warn("shown", ErrorField(nil))
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "<nil>")
}
