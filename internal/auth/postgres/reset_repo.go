// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/store"
)

// ResetTokenRepository implements auth.ResetTokenStore using PostgreSQL.
type ResetTokenRepository struct {
	db  store.DB
	now func() time.Time
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(db store.DB, opts ...Option) *ResetTokenRepository {
	o := buildOptions(opts)
	return &ResetTokenRepository{db: db, now: o.now}
}

// Put records token for email, valid for ttl.
func (r *ResetTokenRepository) Put(ctx context.Context, token, email string, ttl time.Duration) error {
	if token == "" {
		return oops.Code("RESET_INVALID_TOKEN").Errorf("reset token cannot be empty")
	}
	if ttl <= 0 {
		return oops.Code("RESET_INVALID_TTL").With("ttl", ttl).Errorf("reset token ttl must be positive")
	}

	now := r.now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_resets (token_hash, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, auth.HashToken(token), auth.NormalizeEmail(email), now.Add(ttl), now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			Wrap(err)
	}
	return nil
}

// Consume deletes the token and returns its email. The delete is the
// linearization point: of concurrent consumers only one gets the row.
func (r *ResetTokenRepository) Consume(ctx context.Context, token string) (string, error) {
	var (
		email     string
		expiresAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		DELETE FROM password_resets WHERE token_hash = $1
		RETURNING email, expires_at
	`, auth.HashToken(token)).Scan(&email, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("RESET_CONSUME_FAILED").With("operation", "delete password_reset").Wrap(err)
	}

	if !r.now().Before(expiresAt) {
		return "", oops.Code("RESET_EXPIRED").With("expires_at", expiresAt).Wrap(auth.ErrExpired)
	}
	return email, nil
}

// DeleteExpired removes tokens at or past their expiry.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, oops.Code("RESET_CLEANUP_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.ResetTokenStore = (*ResetTokenRepository)(nil)
