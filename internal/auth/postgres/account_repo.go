// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/store"
)

const accountColumns = `id, email, name, password_hash, role, created_at, last_login`

// AccountRepository implements auth.CredentialStore using PostgreSQL. The
// unique index on accounts.email makes concurrent Create calls for one email
// resolve to a single winner.
type AccountRepository struct {
	db  store.DB
	now func() time.Time
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.DB, opts ...Option) *AccountRepository {
	o := buildOptions(opts)
	return &AccountRepository{db: db, now: o.now}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, email, name, passwordHash string, role auth.Role) (*auth.Account, error) {
	account, err := auth.NewAccount(email, name, passwordHash, role, r.now())
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		account.ID.String(),
		account.Email,
		account.Name,
		account.PasswordHash,
		string(account.Role),
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("ACCOUNT_EXISTS").
				With("email", account.Email).
				Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return account, nil
}

// FindByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		auth.NormalizeEmail(email))

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "find by email").Wrap(err)
	}
	return account, nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE email = $1`,
		auth.NormalizeEmail(email), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "update password").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *AccountRepository) TouchLastLogin(ctx context.Context, email string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET last_login = $2 WHERE email = $1`,
		auth.NormalizeEmail(email), at.UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "touch last login").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns every account ordered by ID.
func (r *AccountRepository) List(ctx context.Context) ([]*auth.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "scan account").Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account   auth.Account
		idStr     string
		role      string
		lastLogin *time.Time
	)
	if err := row.Scan(&idStr, &account.Email, &account.Name, &account.PasswordHash,
		&role, &account.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).Wrap(err)
	}
	account.ID = id
	account.Role = auth.Role(role)
	account.LastLogin = lastLogin
	return &account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// Compile-time interface check.
var _ auth.CredentialStore = (*AccountRepository)(nil)
