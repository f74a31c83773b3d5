// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/auth/memory"
)

// newTestHasher returns a hasher with minimal cost so tests stay fast.
func newTestHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
}

// countingHasher counts Verify calls on the hasher it wraps.
type countingHasher struct {
	*auth.Argon2idHasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(password, encoded string) bool {
	h.verifies.Add(1)
	return h.Argon2idHasher.Verify(password, encoded)
}

// failingRevokeStore fails DeleteBySubject and delegates everything else.
type failingRevokeStore struct {
	auth.SessionStore
}

func (failingRevokeStore) DeleteBySubject(context.Context, ulid.ULID) (int64, error) {
	return 0, errors.New("session store unavailable")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentReset struct {
	email     string
	token     string
	expiresAt time.Time
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (n *recordingNotifier) NotifyReset(_ context.Context, email, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{email: email, token: token, expiresAt: expiresAt})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// fixture wires a SessionService over the in-memory stores.
type fixture struct {
	svc      *auth.SessionService
	accounts *memory.CredentialStore
	resets   *memory.ResetTokenStore
	sessions *memory.SessionStore
	clock    *testClock
	notifier *recordingNotifier
	logs     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, newTestHasher(), nil)
}

// newFixtureWith wires the service with hasher and, if non-nil, the session
// store wrap puts in front of the memory store.
func newFixtureWith(t *testing.T, hasher auth.PasswordHasher, wrap func(auth.SessionStore) auth.SessionStore) *fixture {
	t.Helper()

	clock := newTestClock()
	f := &fixture{
		accounts: memory.NewCredentialStore(),
		resets:   memory.NewResetTokenStore(memory.WithClock(clock.Now)),
		sessions: memory.NewSessionStore(memory.WithClock(clock.Now)),
		clock:    clock,
		notifier: &recordingNotifier{},
		logs:     &bytes.Buffer{},
	}

	var store auth.SessionStore = f.sessions
	if wrap != nil {
		store = wrap(store)
	}
	issuer := auth.NewRandomTokenIssuer()
	sessions, err := auth.NewOpaqueSessions(issuer, store, auth.OpaqueSessionsConfig{Now: clock.Now})
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.svc, err = auth.NewSessionService(f.accounts, f.resets, sessions, hasher, issuer,
		auth.WithLogger(logger),
		auth.WithClock(clock.Now),
		auth.WithResetNotifier(f.notifier),
	)
	require.NoError(t, err)
	return f
}
