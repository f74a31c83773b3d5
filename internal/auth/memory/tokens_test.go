// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/auth/memory"
	"github.com/bagbot/authd/pkg/errutil"
)

// testClock is a manually advanced clock.
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

func TestResetTokenStore_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes exactly once", func(t *testing.T) {
		store := memory.NewResetTokenStore()
		require.NoError(t, store.Put(ctx, "tok-1", "User@Example.com", time.Hour))

		email, err := store.Consume(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", email)

		_, err = store.Consume(ctx, "tok-1")
		errutil.AssertStoreError(t, err, auth.ErrNotFound, "RESET_NOT_FOUND")
		assert.Equal(t, 0, store.Len())
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		store := memory.NewResetTokenStore()
		_, err := store.Consume(ctx, "nope")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("token is invalid at its expiry instant and removed", func(t *testing.T) {
		clock := newTestClock()
		store := memory.NewResetTokenStore(memory.WithClock(clock.Now))
		require.NoError(t, store.Put(ctx, "tok-2", "a@example.com", time.Hour))

		clock.Advance(time.Hour)
		_, err := store.Consume(ctx, "tok-2")
		errutil.AssertStoreError(t, err, auth.ErrExpired, "RESET_EXPIRED")

		_, err = store.Consume(ctx, "tok-2")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("token is valid just before expiry", func(t *testing.T) {
		clock := newTestClock()
		store := memory.NewResetTokenStore(memory.WithClock(clock.Now))
		require.NoError(t, store.Put(ctx, "tok-3", "a@example.com", time.Hour))

		clock.Advance(time.Hour - time.Nanosecond)
		email, err := store.Consume(ctx, "tok-3")
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", email)
	})

	t.Run("concurrent consumers: exactly one succeeds", func(t *testing.T) {
		store := memory.NewResetTokenStore()
		require.NoError(t, store.Put(ctx, "contended", "a@example.com", time.Hour))

		const workers = 64
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			notFound  atomic.Int32
			start     = make(chan struct{})
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.Consume(ctx, "contended")
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, auth.ErrNotFound):
					notFound.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(workers-1), notFound.Load())
	})

	t.Run("rejects empty token and non-positive ttl", func(t *testing.T) {
		store := memory.NewResetTokenStore()
		assert.Error(t, store.Put(ctx, "", "a@example.com", time.Hour))
		assert.Error(t, store.Put(ctx, "x", "a@example.com", 0))
	})
}

func TestResetTokenStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := memory.NewResetTokenStore(memory.WithClock(clock.Now))

	require.NoError(t, store.Put(ctx, "short", "a@example.com", time.Minute))
	require.NoError(t, store.Put(ctx, "long", "b@example.com", time.Hour))

	clock.Advance(2 * time.Minute)
	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	email, err := store.Consume(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", email)
}

func newSession(now time.Time, ttl time.Duration) *auth.Session {
	return &auth.Session{
		Kind:      auth.TokenAccess,
		SubjectID: ulid.Make(),
		Email:     "a@example.com",
		Role:      auth.RoleUser,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		clock := newTestClock()
		store := memory.NewSessionStore(memory.WithClock(clock.Now))
		session := newSession(clock.Now(), time.Hour)
		require.NoError(t, store.Put(ctx, "access-1", session))

		got, err := store.Get(ctx, "access-1")
		require.NoError(t, err)
		assert.Equal(t, session.SubjectID, got.SubjectID)
		assert.Equal(t, auth.HashToken("access-1"), got.TokenHash)
	})

	t.Run("expired session is removed on lookup", func(t *testing.T) {
		clock := newTestClock()
		store := memory.NewSessionStore(memory.WithClock(clock.Now))
		require.NoError(t, store.Put(ctx, "access-2", newSession(clock.Now(), time.Minute)))

		clock.Advance(time.Minute)
		_, err := store.Get(ctx, "access-2")
		errutil.AssertStoreError(t, err, auth.ErrExpired, "SESSION_EXPIRED")
		assert.Equal(t, 0, store.Len())

		_, err = store.Get(ctx, "access-2")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := memory.NewSessionStore()
		require.NoError(t, store.Put(ctx, "access-3", newSession(time.Now(), time.Hour)))

		require.NoError(t, store.Delete(ctx, "access-3"))
		errutil.AssertStoreError(t, store.Delete(ctx, "access-3"), auth.ErrNotFound, "SESSION_NOT_FOUND")
		_, err := store.Get(ctx, "access-3")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete by subject", func(t *testing.T) {
		store := memory.NewSessionStore()
		now := time.Now()
		mine := newSession(now, time.Hour)
		refresh := *mine
		refresh.Kind = auth.TokenRefresh
		require.NoError(t, store.Put(ctx, "mine-access", mine))
		require.NoError(t, store.Put(ctx, "mine-refresh", &refresh))
		require.NoError(t, store.Put(ctx, "theirs", newSession(now, time.Hour)))

		n, err := store.DeleteBySubject(ctx, mine.SubjectID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, 1, store.Len())

		_, err = store.Get(ctx, "mine-refresh")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = store.Get(ctx, "theirs")
		assert.NoError(t, err)

		n, err = store.DeleteBySubject(ctx, mine.SubjectID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete expired", func(t *testing.T) {
		clock := newTestClock()
		store := memory.NewSessionStore(memory.WithClock(clock.Now))
		require.NoError(t, store.Put(ctx, "s1", newSession(clock.Now(), time.Minute)))
		require.NoError(t, store.Put(ctx, "s2", newSession(clock.Now(), time.Hour)))

		clock.Advance(time.Minute)
		n, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, store.Len())
	})
}
