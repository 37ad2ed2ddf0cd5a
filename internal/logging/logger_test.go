package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format string) (*ServiceLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(&LoggerConfig{Level: level, Format: format, Output: buf}), buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, "text")
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	assert.Empty(t, buf.String())

	logger.Warn(ctx, errors.New("boom"), "warn message")
	assert.Contains(t, buf.String(), "warn message")
	assert.Contains(t, buf.String(), "boom")
}

func TestLoggerJSONFields(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")
	ctx := WithRequestID(context.Background(), "req-123")

	logger.WithComponent("fetcher").With("collection", "projects").
		Info(ctx, "fetched collection", "count", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "fetched collection", entry["msg"])
	assert.Equal(t, "fetcher", entry["component"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "projects", entry["collection"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	ctx := context.Background()

	child := logger.With("child", true)
	logger.Info(ctx, "parent line")
	assert.NotContains(t, buf.String(), "child=true")

	buf.Reset()
	child.Info(ctx, "child line")
	assert.Contains(t, buf.String(), "child=true")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.Debug(ctx, "x")
		logger.Info(ctx, "x")
		logger.Warn(ctx, nil, "x")
		logger.Error(ctx, errors.New("x"), "x")
		logger.With("a", 1).WithComponent("c").Info(ctx, "x")
	})
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"token", "Authorization: token abc", "[REDACTED]"},
		{"secret", "webhook secret xyz", "[REDACTED]"},
		{"normal text", "content/projects/deck.md", "content/projects/deck.md"},
		{"long text", strings.Repeat("a", 1100), strings.Repeat("a", 1000) + "...[TRUNCATED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeForLog(tt.input))
		})
	}
}

func TestLogSecurityEvent(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")

	LogSecurityEvent(context.Background(), logger, errors.New("bad signature"),
		"webhook_signature_rejected", map[string]interface{}{
			"header":    "sha256=secret-looking",
			"client_ip": "10.0.0.1",
		})

	out := buf.String()
	assert.Contains(t, out, "webhook_signature_rejected")
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "[REDACTED]")
}

func TestPerfLogger(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	ctx := context.Background()

	StartOperation(logger, "invalidate").End(ctx, "tags", 2)
	assert.Contains(t, buf.String(), "operation=invalidate")
	assert.Contains(t, buf.String(), "duration_ms=")

	buf.Reset()
	StartOperation(logger, "invalidate").EndWithError(ctx, errors.New("cache down"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), "cache down")
}
