// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package errutil bridges oops errors into slog records and test assertions.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError writes err at ERROR level through logger using ctx, so handlers
// that read the context (request id, trace) annotate the record. Coded oops
// errors contribute their code and context map. A nil logger falls back to
// slog.Default.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelError, msg, errorAttrs(err)...)
}

func errorAttrs(err error) []slog.Attr {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []slog.Attr{slog.Any("error", err)}
	}

	attrs := []slog.Attr{slog.String("error", oopsErr.Error())}
	if code, ok := oopsErr.Code().(string); ok && code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if fields := oopsErr.Context(); len(fields) > 0 {
		attrs = append(attrs, slog.Any("context", fields))
	}
	return attrs
}
