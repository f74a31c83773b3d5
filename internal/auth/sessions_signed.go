// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSigningKeyBytes is the minimum HMAC key length for signed sessions.
const MinSigningKeyBytes = 32

// DefaultTokenIssuer is the "iss" claim of signed tokens.
const DefaultTokenIssuer = "authd"

// SignedSessionsConfig configures SignedSessions.
type SignedSessionsConfig struct {
	SigningKey []byte
	// Issuer defaults to DefaultTokenIssuer.
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// SignedSessions implements Sessions with self-contained HS256 tokens. They
// validate without a store lookup but cannot be revoked before expiry: Revoke
// is a no-op and a refresh token stays usable until it expires.
type SignedSessions struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string    `json:"email"`
	Role  Role      `json:"role"`
	Kind  TokenKind `json:"kind"`
}

// NewSignedSessions creates a SignedSessions.
func NewSignedSessions(cfg SignedSessionsConfig) (*SignedSessions, error) {
	if len(cfg.SigningKey) < MinSigningKeyBytes {
		return nil, oops.Code("SESSIONS_INVALID_CONFIG").
			With("min_bytes", MinSigningKeyBytes).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	s := &SignedSessions{
		key:        cfg.SigningKey,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultTokenIssuer
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

// Issue signs an access and a refresh token for account.
func (s *SignedSessions) Issue(_ context.Context, account *Account) (TokenPair, error) {
	now := s.now()

	access, err := s.sign(account, TokenAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(account, TokenRefresh, now, s.refreshTTL)
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

func (s *SignedSessions) sign(account *Account, kind TokenKind, now time.Time, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: account.Email,
		Role:  account.Role,
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "sign token").
			With("kind", string(kind)).
			Wrap(err)
	}
	return signed, nil
}

// Validate verifies an access token's signature, issuer, kind and expiry.
func (s *SignedSessions) Validate(_ context.Context, accessToken string) (*Session, error) {
	return s.parse(accessToken, TokenAccess)
}

// Refresh verifies a refresh token and issues a new pair.
func (s *SignedSessions) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	session, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Issue(ctx, &Account{ID: session.SubjectID, Email: session.Email, Role: session.Role})
}

// Revoke is a no-op: signed tokens stay valid until they expire.
func (s *SignedSessions) Revoke(context.Context, string) error {
	return nil
}

// RevokeAll is a no-op for the same reason as Revoke.
func (s *SignedSessions) RevokeAll(context.Context, ulid.ULID) error {
	return nil
}

func (s *SignedSessions) parse(token string, kind TokenKind) (*Session, error) {
	invalid := oops.Code(CodeInvalidToken).Errorf("invalid session token")
	if token == "" {
		return nil, invalid
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Kind != kind {
		return nil, invalid
	}
	// The jwt library accepts a token at exactly its exp instant.
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, invalid
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, invalid
	}

	session := &Session{
		TokenHash: HashToken(token),
		Kind:      claims.Kind,
		SubjectID: subject,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	return session, nil
}

// Compile-time interface check.
var _ Sessions = (*SignedSessions)(nil)
