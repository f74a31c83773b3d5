// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OpaqueSessionsConfig configures OpaqueSessions.
type OpaqueSessionsConfig struct {
	// AccessTTL defaults to AccessTokenExpiry if zero.
	AccessTTL time.Duration
	// RefreshTTL defaults to RefreshTokenExpiry if zero.
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// OpaqueSessions implements Sessions with random bearer tokens recorded in a
// SessionStore. Sessions are revocable; every validation is a store lookup.
type OpaqueSessions struct {
	issuer     TokenIssuer
	store      SessionStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewOpaqueSessions creates an OpaqueSessions.
func NewOpaqueSessions(issuer TokenIssuer, store SessionStore, cfg OpaqueSessionsConfig) (*OpaqueSessions, error) {
	if issuer == nil {
		return nil, oops.Code("SESSIONS_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if store == nil {
		return nil, oops.Code("SESSIONS_INVALID_CONFIG").Errorf("session store is required")
	}
	s := &OpaqueSessions{
		issuer:     issuer,
		store:      store,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = AccessTokenExpiry
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = RefreshTokenExpiry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Issue mints and records an access and a refresh token for account.
func (s *OpaqueSessions) Issue(ctx context.Context, account *Account) (TokenPair, error) {
	now := s.now()

	access, err := s.put(ctx, account, TokenAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.put(ctx, account, TokenRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    BearerTokenType,
		ExpiresIn:    int(s.accessTTL / time.Second),
	}, nil
}

func (s *OpaqueSessions) put(ctx context.Context, account *Account, kind TokenKind, now time.Time, ttl time.Duration) (string, error) {
	token, err := s.issuer.Issue(SessionTokenBytes)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "issue token").
			With("kind", string(kind)).
			Wrap(err)
	}
	session := &Session{
		TokenHash: HashToken(token),
		Kind:      kind,
		SubjectID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Put(ctx, token, session); err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "persist session").
			With("kind", string(kind)).
			Wrap(err)
	}
	return token, nil
}

// Validate looks up an access token and checks its kind and expiry.
func (s *OpaqueSessions) Validate(ctx context.Context, accessToken string) (*Session, error) {
	return s.lookup(ctx, accessToken, TokenAccess)
}

// Refresh consumes a refresh token and issues a new pair. A refresh token is
// single-use: of concurrent refreshes with the same token only one succeeds.
func (s *OpaqueSessions) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	session, err := s.lookup(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.store.Delete(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, oops.Code(CodeInvalidToken).Errorf("invalid session token")
		}
		return TokenPair{}, oops.Code("SESSION_REFRESH_FAILED").
			With("operation", "consume refresh token").
			Wrap(err)
	}

	return s.Issue(ctx, &Account{ID: session.SubjectID, Email: session.Email, Role: session.Role})
}

// Revoke deletes an access token. Revoking an unknown token succeeds.
func (s *OpaqueSessions) Revoke(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := s.store.Delete(ctx, accessToken); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// RevokeAll deletes every session of subjectID.
func (s *OpaqueSessions) RevokeAll(ctx context.Context, subjectID ulid.ULID) error {
	if _, err := s.store.DeleteBySubject(ctx, subjectID); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete subject sessions").
			With("subject_id", subjectID.String()).
			Wrap(err)
	}
	return nil
}

func (s *OpaqueSessions) lookup(ctx context.Context, token string, kind TokenKind) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid session token")
	}

	session, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
			return nil, oops.Code(CodeInvalidToken).Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session").
			Wrap(err)
	}

	if session.Kind != kind || session.IsExpiredAt(s.now()) {
		return nil, oops.Code(CodeInvalidToken).Errorf("invalid session token")
	}
	return session, nil
}

// Compile-time interface check.
var _ Sessions = (*OpaqueSessions)(nil)
