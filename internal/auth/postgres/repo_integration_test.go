// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/auth/postgres"
)

func cleanupAccount(t *testing.T, email string) {
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM accounts WHERE email = $1`, email)
	})
}

func TestAccountRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	cleanupAccount(t, "int-a@x.com")

	created, err := repo.Create(ctx, "Int-A@x.com", "Alice", "hash1", auth.RoleUser)
	require.NoError(t, err)

	_, err = repo.Create(ctx, "int-a@x.com", "Mallory", "hash2", auth.RoleAdmin)
	assert.ErrorIs(t, err, auth.ErrAlreadyExists)

	found, err := repo.FindByEmail(ctx, "INT-A@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash1", found.PasswordHash)
	assert.Nil(t, found.LastLogin)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.TouchLastLogin(ctx, "int-a@x.com", at))
	require.NoError(t, repo.UpdatePassword(ctx, "int-a@x.com", "hash3"))

	found, err = repo.FindByEmail(ctx, "int-a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash3", found.PasswordHash)
	require.NotNil(t, found.LastLogin)
	assert.True(t, found.LastLogin.Equal(at))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, accounts)
}

func TestAccountRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	cleanupAccount(t, "race@x.com")

	const workers = 16
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, "race@x.com", "racer", "hash", auth.RoleUser)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, auth.ErrAlreadyExists):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), duplicates.Load())
}

func TestResetTokenRepository_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	accounts := postgres.NewAccountRepository(testPool)
	resets := postgres.NewResetTokenRepository(testPool)
	cleanupAccount(t, "reset@x.com")

	_, err := accounts.Create(ctx, "reset@x.com", "Reset", "hash", auth.RoleUser)
	require.NoError(t, err)
	require.NoError(t, resets.Put(ctx, "contended", "reset@x.com", time.Hour))

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resets.Consume(ctx, "contended")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, auth.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), notFound.Load())

	var stored int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM password_resets WHERE token_hash = $1`, "contended").Scan(&stored))
	assert.Zero(t, stored, "plaintext token must never be a key")
}

func TestSessionRepository_Integration(t *testing.T) {
	ctx := context.Background()
	accounts := postgres.NewAccountRepository(testPool)
	cleanupAccount(t, "sess@x.com")
	account, err := accounts.Create(ctx, "sess@x.com", "Sess", "hash", auth.RoleUser)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	current := now
	sessions := postgres.NewSessionRepository(testPool, postgres.WithClock(func() time.Time { return current }))

	require.NoError(t, sessions.Put(ctx, "tok-live", &auth.Session{
		Kind: auth.TokenAccess, SubjectID: account.ID, Email: account.Email, Role: account.Role,
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, sessions.Put(ctx, "tok-short", &auth.Session{
		Kind: auth.TokenRefresh, SubjectID: account.ID, Email: account.Email, Role: account.Role,
		IssuedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	got, err := sessions.Get(ctx, "tok-live")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.SubjectID)

	current = now.Add(time.Minute)
	_, err = sessions.Get(ctx, "tok-short")
	assert.ErrorIs(t, err, auth.ErrExpired)

	require.NoError(t, sessions.Delete(ctx, "tok-live"))
	assert.ErrorIs(t, sessions.Delete(ctx, "tok-live"), auth.ErrNotFound)
}

func TestSessionRepository_DeleteBySubject_Integration(t *testing.T) {
	ctx := context.Background()
	accounts := postgres.NewAccountRepository(testPool)
	cleanupAccount(t, "owner@x.com")
	cleanupAccount(t, "other@x.com")
	owner, err := accounts.Create(ctx, "owner@x.com", "Owner", "hash", auth.RoleUser)
	require.NoError(t, err)
	other, err := accounts.Create(ctx, "other@x.com", "Other", "hash", auth.RoleUser)
	require.NoError(t, err)

	now := time.Now().UTC()
	sessions := postgres.NewSessionRepository(testPool)
	put := func(token string, account *auth.Account, kind auth.TokenKind) {
		require.NoError(t, sessions.Put(ctx, token, &auth.Session{
			Kind: kind, SubjectID: account.ID, Email: account.Email, Role: account.Role,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}
	put("owner-access", owner, auth.TokenAccess)
	put("owner-refresh", owner, auth.TokenRefresh)
	put("other-access", other, auth.TokenAccess)

	n, err := sessions.DeleteBySubject(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = sessions.Get(ctx, "owner-refresh")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = sessions.Get(ctx, "other-access")
	assert.NoError(t, err)
}
