// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package logging builds the process logger: slog JSON or text output with
// the service identity and OpenTelemetry trace context on every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// traceHandler stamps records with service identity and the active span.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level. An
// empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, oops.Code("INVALID_LOG_LEVEL").With("level", level).
			Errorf("log level must be debug, info, warn or error")
	}
}

// ValidFormat reports whether format names a supported output format. Empty
// means JSON.
func ValidFormat(format string) bool {
	return format == "" || format == FormatJSON || format == FormatText
}

// Setup creates a logger writing format ("json" or "text", default json) at
// level to w, or to stderr when w is nil.
func Setup(service, version, format, level string, w io.Writer) (*slog.Logger, error) {
	if !ValidFormat(format) {
		return nil, oops.Code("INVALID_LOG_FORMAT").With("format", format).
			Errorf("log format must be json or text")
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var base slog.Handler
	if format == FormatText {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&traceHandler{handler: base, service: service, version: version}), nil
}

// SetDefault builds a stderr logger and installs it as slog's default.
func SetDefault(service, version, format, level string) (*slog.Logger, error) {
	logger, err := Setup(service, version, format, level, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
