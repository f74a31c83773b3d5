// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is an account's authorization role.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Input constraints.
const (
	MaxEmailLength = 254
	MaxNameLength  = 100
)

// Account is a registered identity. Email is stored normalized and is unique
// across all accounts.
type Account struct {
	ID           ulid.ULID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// AccountView is the outward representation of an Account. It never carries
// the password hash.
type AccountView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// View returns the outward representation of a.
func (a *Account) View() AccountView {
	return AccountView{
		ID:        a.ID.String(),
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
	}
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	c := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// NormalizeEmail case-folds and trims an email address. All store lookups
// use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare, well-formed address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidInput).
			With("field", "email").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is not a valid address")
	}
	return nil
}

// ValidateName checks the display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code(CodeInvalidInput).With("field", "name").Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code(CodeInvalidInput).
			With("field", "name").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// NewAccount creates a validated Account with a fresh ID. The email is
// normalized before validation.
func NewAccount(email, name, passwordHash string, role Role, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now.UTC(),
	}, nil
}

// CredentialStore owns the mapping from normalized email to Account. All
// operations are atomic with respect to each other for a given email, and
// mutations are visible to every subsequent read.
type CredentialStore interface {
	// Create stores a new account. Returns ErrAlreadyExists if the normalized
	// email is taken; the existing account is left untouched.
	Create(ctx context.Context, email, name, passwordHash string, role Role) (*Account, error)

	// FindByEmail retrieves an account by email (case-insensitive).
	// Returns ErrNotFound if no account has the email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePassword replaces the password hash. Returns ErrNotFound if absent.
	UpdatePassword(ctx context.Context, email, passwordHash string) error

	// TouchLastLogin sets LastLogin to at. Returns ErrNotFound if absent.
	TouchLastLogin(ctx context.Context, email string, at time.Time) error
}
