// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package errutil holds the helpers authd uses to inspect, log and assert
// oops errors.
package errutil

import (
	"context"
	"log/slog"
	"slices"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" if err has none. oops
// reports the innermost code in a wrap chain.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// HasCode reports whether err carries one of codes.
func HasCode(err error, codes ...string) bool {
	code := Code(err)
	return code != "" && slices.Contains(codes, code)
}

// Classifier reports whether err is an expected outcome, such as a caller
// sending bad input, rather than a fault.
type Classifier func(err error) bool

// LogError logs err at error level with its code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, msg, err, nil)
}

// Log logs err with its code and context. Errors that expected accepts are
// logged at info level without context; everything else is an error.
func Log(ctx context.Context, logger *slog.Logger, msg string, err error, expected Classifier) {
	if err == nil {
		return
	}
	if expected != nil && expected(err) {
		logger.InfoContext(ctx, msg, "error", err.Error(), "code", Code(err))
		return
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", errCtx)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
