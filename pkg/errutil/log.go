// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package errutil bridges oops errors into structured logs and tests.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns slog key/value pairs describing err. Oops errors contribute
// their code and context; other errors only their message.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its oops code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// LogWarn logs err at warn level with its oops code and context.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, Attrs(err)...)
}
