// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package redis provides Redis implementations of the reset token and
// session stores. Entries carry a Redis TTL so the server drops them on
// expiry; lookups also check the stored expiry against the local clock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
)

// DefaultKeyPrefix namespaces every key written by this package.
const DefaultKeyPrefix = "authd:"

// Option configures a store.
type Option func(*options)

type options struct {
	prefix string
	now    func() time.Time
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ttlUntil returns the Redis TTL for an entry expiring at expiresAt, or
// false if it is already expired.
func ttlUntil(now, expiresAt time.Time) (time.Duration, bool) {
	ttl := expiresAt.Sub(now)
	return ttl, ttl > 0
}

type resetEntry struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ResetTokenStore implements auth.ResetTokenStore on Redis. Consume uses
// GETDEL, so a token is handed out at most once.
type ResetTokenStore struct {
	client goredis.Cmdable
	opts   options
}

// NewResetTokenStore creates a ResetTokenStore.
func NewResetTokenStore(client goredis.Cmdable, opts ...Option) *ResetTokenStore {
	return &ResetTokenStore{client: client, opts: buildOptions(opts)}
}

func (s *ResetTokenStore) key(token string) string {
	return s.opts.prefix + "reset:" + auth.HashToken(token)
}

// Put records token for email, valid for ttl.
func (s *ResetTokenStore) Put(ctx context.Context, token, email string, ttl time.Duration) error {
	if token == "" {
		return oops.Code("RESET_INVALID_TOKEN").Errorf("reset token cannot be empty")
	}
	if ttl <= 0 {
		return oops.Code("RESET_INVALID_TTL").With("ttl", ttl).Errorf("reset token ttl must be positive")
	}

	now := s.opts.now().UTC()
	data, err := json.Marshal(resetEntry{
		Email:     auth.NormalizeEmail(email),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").With("operation", "marshal entry").Wrap(err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return oops.Code("RESET_CREATE_FAILED").With("operation", "set key").Wrap(err)
	}
	return nil
}

// Consume atomically removes the token and returns its email.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (string, error) {
	data, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return "", oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("RESET_CONSUME_FAILED").With("operation", "getdel").Wrap(err)
	}

	var entry resetEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", oops.Code("RESET_CORRUPT").With("operation", "unmarshal entry").Wrap(err)
	}
	if !s.opts.now().Before(entry.ExpiresAt) {
		return "", oops.Code("RESET_EXPIRED").With("expires_at", entry.ExpiresAt).Wrap(auth.ErrExpired)
	}
	return entry.Email, nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (s *ResetTokenStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

type sessionEntry struct {
	Kind      auth.TokenKind `json:"kind"`
	SubjectID string         `json:"sub"`
	Email     string         `json:"email"`
	Role      auth.Role      `json:"role"`
	IssuedAt  time.Time      `json:"iat"`
	ExpiresAt time.Time      `json:"exp"`
}

// SessionStore implements auth.SessionStore on Redis. Each subject has a set
// of its session digests so DeleteBySubject does not scan the keyspace; the
// set's TTL tracks its longest-lived session. Requires Redis 7 or later.
type SessionStore struct {
	client goredis.Cmdable
	opts   options
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(client goredis.Cmdable, opts ...Option) *SessionStore {
	return &SessionStore{client: client, opts: buildOptions(opts)}
}

func (s *SessionStore) key(hash string) string {
	return s.opts.prefix + "session:" + hash
}

func (s *SessionStore) subjectKey(subjectID ulid.ULID) string {
	return s.opts.prefix + "subject:" + subjectID.String()
}

// deleteSubject removes the sessions listed in a subject set, then the set.
// Sessions deleted earlier count zero.
var deleteSubject = goredis.NewScript(`
local n = 0
for _, hash in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	n = n + redis.call('DEL', ARGV[1] .. hash)
end
redis.call('DEL', KEYS[1])
return n
`)

// Put records session under the digest of token.
func (s *SessionStore) Put(ctx context.Context, token string, session *auth.Session) error {
	if token == "" {
		return oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	ttl, live := ttlUntil(s.opts.now(), session.ExpiresAt)
	if !live {
		return oops.Code("SESSION_INVALID_TTL").Errorf("session is already expired")
	}

	data, err := json.Marshal(sessionEntry{
		Kind:      session.Kind,
		SubjectID: session.SubjectID.String(),
		Email:     session.Email,
		Role:      session.Role,
		IssuedAt:  session.IssuedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "marshal entry").Wrap(err)
	}
	hash := auth.HashToken(token)
	subject := s.subjectKey(session.SubjectID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key(hash), data, ttl)
		pipe.SAdd(ctx, subject, hash)
		pipe.ExpireNX(ctx, subject, ttl)
		pipe.ExpireGT(ctx, subject, ttl)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "set key").Wrap(err)
	}
	return nil
}

// Get returns the session for token.
func (s *SessionStore) Get(ctx context.Context, token string) (*auth.Session, error) {
	hash := auth.HashToken(token)
	data, err := s.client.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "get").Wrap(err)
	}

	session, err := decodeSession(hash, data)
	if err != nil {
		return nil, err
	}
	if session.IsExpiredAt(s.opts.now()) {
		if err := s.client.Del(ctx, s.key(hash)).Err(); err != nil {
			return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "delete expired").Wrap(err)
		}
		return nil, oops.Code("SESSION_EXPIRED").Wrap(auth.ErrExpired)
	}
	return session, nil
}

// Delete removes the session for token. DEL reports how many keys it
// removed, so only one of several concurrent deletes succeeds.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, s.key(auth.HashToken(token))).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "del").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteBySubject removes every session of subjectID in one script call.
func (s *SessionStore) DeleteBySubject(ctx context.Context, subjectID ulid.ULID) (int64, error) {
	n, err := deleteSubject.Run(ctx, s.client,
		[]string{s.subjectKey(subjectID)}, s.opts.prefix+"session:").Int64()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete subject sessions").
			With("sub", subjectID.String()).
			Wrap(err)
	}
	return n, nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func decodeSession(hash string, data []byte) (*auth.Session, error) {
	var entry sessionEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("operation", "unmarshal entry").Wrap(err)
	}
	id, err := ulid.Parse(entry.SubjectID)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("sub", entry.SubjectID).Wrap(err)
	}
	return &auth.Session{
		TokenHash: hash,
		Kind:      entry.Kind,
		SubjectID: id,
		Email:     entry.Email,
		Role:      entry.Role,
		IssuedAt:  entry.IssuedAt,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

// Compile-time interface checks.
var (
	_ auth.ResetTokenStore = (*ResetTokenStore)(nil)
	_ auth.SessionStore    = (*SessionStore)(nil)
)
