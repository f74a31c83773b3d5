// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/store"
)

// SessionRepository implements auth.SessionStore using PostgreSQL.
type SessionRepository struct {
	db  store.DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db store.DB, opts ...Option) *SessionRepository {
	o := buildOptions(opts)
	return &SessionRepository{db: db, now: o.now}
}

// Put records session under the digest of token.
func (r *SessionRepository) Put(ctx context.Context, token string, session *auth.Session) error {
	if token == "" {
		return oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (token_hash, kind, account_id, email, role, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		auth.HashToken(token),
		string(session.Kind),
		session.SubjectID.String(),
		session.Email,
		string(session.Role),
		session.IssuedAt.UTC(),
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("kind", string(session.Kind)).
			Wrap(err)
	}
	return nil
}

// Get looks up a session. An expired session is deleted and reported as
// ErrExpired.
func (r *SessionRepository) Get(ctx context.Context, token string) (*auth.Session, error) {
	hash := auth.HashToken(token)
	row := r.db.QueryRow(ctx, `
		SELECT token_hash, kind, account_id, email, role, issued_at, expires_at
		FROM sessions WHERE token_hash = $1
	`, hash)

	var (
		session   auth.Session
		kind      string
		accountID string
		role      string
	)
	err := row.Scan(&session.TokenHash, &kind, &accountID, &session.Email, &role,
		&session.IssuedAt, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "get session").Wrap(err)
	}

	id, err := ulid.Parse(accountID)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("account_id", accountID).Wrap(err)
	}
	session.SubjectID = id
	session.Kind = auth.TokenKind(kind)
	session.Role = auth.Role(role)

	if session.IsExpiredAt(r.now()) {
		if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hash); err != nil {
			return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "delete expired session").Wrap(err)
		}
		return nil, oops.Code("SESSION_EXPIRED").Wrap(auth.ErrExpired)
	}
	return &session, nil
}

// Delete removes a session. Only one of several concurrent deletes of the
// same token succeeds; the rest get ErrNotFound.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, auth.HashToken(token))
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteBySubject removes every session of an account.
func (r *SessionRepository) DeleteBySubject(ctx context.Context, subjectID ulid.ULID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, subjectID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete subject sessions").
			With("account_id", subjectID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions at or past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionRepository)(nil)
