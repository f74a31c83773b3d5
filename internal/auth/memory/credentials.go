// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package memory

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
)

// AccountPersister is the durable backing of a CredentialStore: the whole
// account set is loaded at startup and saved on flush.
type AccountPersister interface {
	LoadAccounts(ctx context.Context) ([]*auth.Account, error)
	SaveAccounts(ctx context.Context, accounts []*auth.Account) error
}

// CredentialStore implements auth.CredentialStore in memory. Accounts are
// copied on the way in and out, so callers never share state with the store.
type CredentialStore struct {
	accounts *shardedMap[*auth.Account]
	now      func() time.Time

	// changes counts mutations; saved is its value at the last Load or Save.
	changes atomic.Uint64
	saved   atomic.Uint64
}

// NewCredentialStore creates an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		accounts: newShardedMap[*auth.Account](),
		now:      time.Now,
	}
}

// Create stores a new account under its normalized email.
func (s *CredentialStore) Create(_ context.Context, email, name, passwordHash string, role auth.Role) (*auth.Account, error) {
	account, err := auth.NewAccount(email, name, passwordHash, role, s.now())
	if err != nil {
		return nil, err
	}

	var exists bool
	s.accounts.with(account.Email, func(m map[string]*auth.Account) {
		if _, exists = m[account.Email]; !exists {
			m[account.Email] = account.Clone()
		}
	})
	if exists {
		return nil, oops.Code("ACCOUNT_EXISTS").
			With("email", account.Email).
			Wrap(auth.ErrAlreadyExists)
	}
	s.changes.Add(1)
	return account, nil
}

// FindByEmail retrieves an account by email (case-insensitive).
func (s *CredentialStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)

	var account *auth.Account
	s.accounts.with(email, func(m map[string]*auth.Account) {
		if a, ok := m[email]; ok {
			account = a.Clone()
		}
	})
	if account == nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return account, nil
}

// UpdatePassword replaces the password hash of an account.
func (s *CredentialStore) UpdatePassword(_ context.Context, email, passwordHash string) error {
	return s.update(email, func(a *auth.Account) { a.PasswordHash = passwordHash })
}

// TouchLastLogin records a successful login.
func (s *CredentialStore) TouchLastLogin(_ context.Context, email string, at time.Time) error {
	at = at.UTC()
	return s.update(email, func(a *auth.Account) { a.LastLogin = &at })
}

func (s *CredentialStore) update(email string, fn func(a *auth.Account)) error {
	email = auth.NormalizeEmail(email)

	found := false
	s.accounts.with(email, func(m map[string]*auth.Account) {
		a, ok := m[email]
		if !ok {
			return
		}
		// Replace rather than mutate so previously returned clones never alias.
		updated := a.Clone()
		fn(updated)
		m[email] = updated
		found = true
	})
	if !found {
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	s.changes.Add(1)
	return nil
}

// Len returns the number of accounts.
func (s *CredentialStore) Len() int {
	return s.accounts.len()
}

// Snapshot returns copies of all accounts ordered by creation time.
func (s *CredentialStore) Snapshot() []*auth.Account {
	var out []*auth.Account
	s.accounts.each(func(m map[string]*auth.Account) {
		for _, a := range m {
			out = append(out, a.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Restore loads accounts into an empty store. Duplicate emails are rejected.
func (s *CredentialStore) Restore(accounts []*auth.Account) error {
	for _, a := range accounts {
		email := auth.NormalizeEmail(a.Email)
		var exists bool
		s.accounts.with(email, func(m map[string]*auth.Account) {
			if _, exists = m[email]; !exists {
				c := a.Clone()
				c.Email = email
				m[email] = c
				s.changes.Add(1)
			}
		})
		if exists {
			return oops.Code("ACCOUNT_EXISTS").
				With("operation", "restore").
				With("email", email).
				Wrap(auth.ErrAlreadyExists)
		}
	}
	return nil
}

// Load restores the store from p.
func (s *CredentialStore) Load(ctx context.Context, p AccountPersister) error {
	accounts, err := p.LoadAccounts(ctx)
	if err != nil {
		return oops.Code("ACCOUNTS_LOAD_FAILED").Wrap(err)
	}
	if err := s.Restore(accounts); err != nil {
		return err
	}
	s.saved.Store(s.changes.Load())
	return nil
}

// Save writes a snapshot of the store to p.
func (s *CredentialStore) Save(ctx context.Context, p AccountPersister) error {
	changes := s.changes.Load()
	if err := p.SaveAccounts(ctx, s.Snapshot()); err != nil {
		return oops.Code("ACCOUNTS_SAVE_FAILED").Wrap(err)
	}
	s.saved.Store(changes)
	return nil
}

// Flush saves to p if the store changed since the last Load or Save, and
// reports whether it wrote.
func (s *CredentialStore) Flush(ctx context.Context, p AccountPersister) (bool, error) {
	if s.changes.Load() == s.saved.Load() {
		return false, nil
	}
	if err := s.Save(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*CredentialStore)(nil)
