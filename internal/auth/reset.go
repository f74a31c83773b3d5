// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"time"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32        // 32 bytes = 43 base64url chars
	ResetTokenExpiry = time.Hour // default time-to-live
)

// ResetToken is a pending password reset. Stores hold it under the hash of
// the bearer token; the plaintext is only ever seen by the requester.
type ResetToken struct {
	TokenHash string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is invalid at t. A token is invalid
// at or after its expiry instant.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// ResetTokenStore owns short-lived single-use reset tokens.
type ResetTokenStore interface {
	// Put records token for email, valid for ttl.
	Put(ctx context.Context, token, email string, ttl time.Duration) error

	// Consume atomically checks and removes token, returning its email.
	// Under concurrent callers exactly one observes success; the others get
	// ErrNotFound. An expired token yields ErrExpired and is removed.
	Consume(ctx context.Context, token string) (string, error)

	// DeleteExpired removes all expired tokens and returns how many.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ResetNotifier delivers a reset token to the account holder.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, email, token string, expiresAt time.Time) error
}
