// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32
	AccessTokenExpiry  = time.Hour
	RefreshTokenExpiry = 30 * 24 * time.Hour
	BearerTokenType    = "Bearer"
)

// TokenKind distinguishes access from refresh credentials.
type TokenKind string

// Token kinds.
const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Session is what a bearer token authenticates.
type Session struct {
	TokenHash string
	Kind      TokenKind
	SubjectID ulid.ULID
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the session is invalid at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// TokenPair is returned by register, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// SessionStore holds opaque sessions keyed by token hash.
type SessionStore interface {
	// Put records s under the hash of token.
	Put(ctx context.Context, token string, s *Session) error

	// Get returns the session for token. Returns ErrNotFound if absent and
	// ErrExpired (removing the entry) if past expiry.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes the session for token. Returns ErrNotFound if absent.
	Delete(ctx context.Context, token string) error

	// DeleteBySubject removes every session issued to subjectID and returns
	// how many. Removing none is not an error.
	DeleteBySubject(ctx context.Context, subjectID ulid.ULID) (int64, error)

	// DeleteExpired removes all expired sessions and returns how many.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sessions issues and validates access/refresh credentials for an account.
type Sessions interface {
	// Issue mints a new access and refresh token for account.
	Issue(ctx context.Context, account *Account) (TokenPair, error)

	// Validate returns the session an access token authenticates.
	Validate(ctx context.Context, accessToken string) (*Session, error)

	// Refresh exchanges a refresh token for a new pair.
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)

	// Revoke invalidates an access token where the implementation supports it.
	Revoke(ctx context.Context, accessToken string) error

	// RevokeAll invalidates every access and refresh token of subjectID
	// where the implementation supports it.
	RevokeAll(ctx context.Context, subjectID ulid.ULID) error
}
