// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/newswire/newswire/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", FormatJSON, "info", &buf)
	require.NoError(t, err)

	logger.Info("client connected", "client_id", "abc")

	entry := decode(t, &buf)
	assert.Equal(t, "client connected", entry["msg"])
	assert.Equal(t, "newswire", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "abc", entry["client_id"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", FormatText, "", &buf)
	require.NoError(t, err)

	logger.Info("poll finished")

	assert.Contains(t, buf.String(), "poll finished")
	assert.Contains(t, buf.String(), "service=newswire")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", "", "", &buf)
	require.NoError(t, err)

	logger.Info("hello")
	decode(t, &buf)
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", FormatJSON, "warn", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestSetup_RejectsBadInput(t *testing.T) {
	_, err := Setup("newswire", "1.0.0", "xml", "info", nil)
	errutil.AssertErrorCode(t, err, "INVALID_LOG_FORMAT")

	_, err = Setup("newswire", "1.0.0", FormatJSON, "verbose", nil)
	errutil.AssertErrorCode(t, err, "INVALID_LOG_LEVEL")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", FormatJSON, "debug", &buf)
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "news broadcast")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_WithAttrsKeepsIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("newswire", "1.0.0", FormatJSON, "info", &buf)
	require.NoError(t, err)

	logger.With("component", "sweeper").WithGroup("sweep").Info("done", "evicted", 2)

	entry := decode(t, &buf)
	assert.Equal(t, "sweeper", entry["component"])
	assert.Contains(t, entry, "sweep")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault("newswire", "2.0.0", FormatJSON, "info")
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
