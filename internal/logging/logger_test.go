package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewWithWriters_FansOut(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewWithWriters(&console, &file, "info", "text")

	logger.Debug("hidden")
	logger.Info("table loaded", "rows", 10)

	assert.Contains(t, console.String(), "table loaded")
	assert.NotContains(t, console.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "table loaded", rec["msg"])
	assert.EqualValues(t, 10, rec["rows"])
}

func TestSetup_WritesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "ingest.log")
	cleanup, err := Setup("info", "json", path)
	require.NoError(t, err)

	slog.Info("startup check passed", "check", "inbox")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"check":"inbox"`), string(data))
}

func TestSetup_BadLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cleanup, err := Setup("info", "text", filepath.Join(t.TempDir(), "missing", "ingest.log"))
	require.Error(t, err)
	assert.NoError(t, cleanup())
}

func TestFromContext_RunID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := ContextWithRunID(context.Background(), "run-123")
	assert.Equal(t, "run-123", RunID(ctx))

	WithFields(ctx, "file", "wq_ACME.csv").Info("processing")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-123", rec["run_id"])
	assert.Equal(t, "wq_ACME.csv", rec["file"])
}

func TestRunID_Empty(t *testing.T) {
	assert.Empty(t, RunID(context.Background()))
}
