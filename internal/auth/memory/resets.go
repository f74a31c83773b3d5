// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package memory

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
)

// ResetTokenStore implements auth.ResetTokenStore in memory.
type ResetTokenStore struct {
	tokens *shardedMap[auth.ResetToken]
	now    func() time.Time
}

// NewResetTokenStore creates an empty ResetTokenStore.
func NewResetTokenStore(opts ...Option) *ResetTokenStore {
	o := buildOptions(opts)
	return &ResetTokenStore{
		tokens: newShardedMap[auth.ResetToken](),
		now:    o.now,
	}
}

// Put records token for email, valid for ttl.
func (s *ResetTokenStore) Put(_ context.Context, token, email string, ttl time.Duration) error {
	if token == "" {
		return oops.Code("RESET_INVALID_TOKEN").Errorf("reset token cannot be empty")
	}
	if ttl <= 0 {
		return oops.Code("RESET_INVALID_TTL").With("ttl", ttl).Errorf("reset ttl must be positive")
	}

	now := s.now()
	entry := auth.ResetToken{
		TokenHash: auth.HashToken(token),
		Email:     auth.NormalizeEmail(email),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.tokens.with(entry.TokenHash, func(m map[string]auth.ResetToken) {
		m[entry.TokenHash] = entry
	})
	return nil
}

// Consume removes token and returns its email. Removal happens under the
// shard lock, so only one concurrent caller can observe the entry.
func (s *ResetTokenStore) Consume(_ context.Context, token string) (string, error) {
	key := auth.HashToken(token)

	var (
		entry auth.ResetToken
		found bool
	)
	s.tokens.with(key, func(m map[string]auth.ResetToken) {
		if entry, found = m[key]; found {
			delete(m, key)
		}
	})

	if !found {
		return "", oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if entry.IsExpiredAt(s.now()) {
		return "", oops.Code("RESET_EXPIRED").With("expires_at", entry.ExpiresAt).Wrap(auth.ErrExpired)
	}
	return entry.Email, nil
}

// DeleteExpired removes all expired tokens.
func (s *ResetTokenStore) DeleteExpired(context.Context) (int64, error) {
	now := s.now()
	var n int64
	s.tokens.each(func(m map[string]auth.ResetToken) {
		for k, entry := range m {
			if entry.IsExpiredAt(now) {
				delete(m, k)
				n++
			}
		}
	})
	return n, nil
}

// Len returns the number of stored tokens, expired or not.
func (s *ResetTokenStore) Len() int {
	return s.tokens.len()
}

// Compile-time interface check.
var _ auth.ResetTokenStore = (*ResetTokenStore)(nil)
