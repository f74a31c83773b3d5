// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier is a ResetNotifier that records reset requests in the log.
// The token itself is never logged; delivery to the account holder needs a
// real channel.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyReset logs that a reset token was issued for email.
func (n *LogNotifier) NotifyReset(ctx context.Context, email, _ string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "reset token issued",
		"email", email,
		"expires_at", expiresAt.UTC(),
	)
	return nil
}

var _ ResetNotifier = (*LogNotifier)(nil)
