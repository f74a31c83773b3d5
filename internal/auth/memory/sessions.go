// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
)

// SessionStore implements auth.SessionStore in memory.
type SessionStore struct {
	sessions *shardedMap[auth.Session]
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore(opts ...Option) *SessionStore {
	o := buildOptions(opts)
	return &SessionStore{
		sessions: newShardedMap[auth.Session](),
		now:      o.now,
	}
}

// Put records session under the hash of token.
func (s *SessionStore) Put(_ context.Context, token string, session *auth.Session) error {
	if token == "" {
		return oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	entry := *session
	entry.TokenHash = auth.HashToken(token)
	s.sessions.with(entry.TokenHash, func(m map[string]auth.Session) {
		m[entry.TokenHash] = entry
	})
	return nil
}

// Get returns the session for token, dropping it if expired.
func (s *SessionStore) Get(_ context.Context, token string) (*auth.Session, error) {
	key := auth.HashToken(token)
	now := s.now()

	var (
		entry          auth.Session
		found, expired bool
	)
	s.sessions.with(key, func(m map[string]auth.Session) {
		if entry, found = m[key]; found && entry.IsExpiredAt(now) {
			delete(m, key)
			expired = true
		}
	})

	switch {
	case !found:
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	case expired:
		return nil, oops.Code("SESSION_EXPIRED").With("expires_at", entry.ExpiresAt).Wrap(auth.ErrExpired)
	}
	return &entry, nil
}

// Delete removes the session for token.
func (s *SessionStore) Delete(_ context.Context, token string) error {
	key := auth.HashToken(token)

	var found bool
	s.sessions.with(key, func(m map[string]auth.Session) {
		if _, found = m[key]; found {
			delete(m, key)
		}
	})
	if !found {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteBySubject removes every session of subjectID. Shards are scanned one
// at a time, so a session put concurrently may survive.
func (s *SessionStore) DeleteBySubject(_ context.Context, subjectID ulid.ULID) (int64, error) {
	var n int64
	s.sessions.each(func(m map[string]auth.Session) {
		for k, entry := range m {
			if entry.SubjectID == subjectID {
				delete(m, k)
				n++
			}
		}
	})
	return n, nil
}

// DeleteExpired removes all expired sessions.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	now := s.now()
	var n int64
	s.sessions.each(func(m map[string]auth.Session) {
		for k, entry := range m {
			if entry.IsExpiredAt(now) {
				delete(m, k)
				n++
			}
		}
	})
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	return s.sessions.len()
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
