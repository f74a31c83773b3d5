// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/auth/memory"
	"github.com/bagbot/authd/internal/auth/postgres"
	authredis "github.com/bagbot/authd/internal/auth/redis"
	"github.com/bagbot/authd/internal/auth/yamlfile"
	"github.com/bagbot/authd/internal/config"
)

// backend is the set of stores selected by configuration.
type backend struct {
	accounts auth.CredentialStore
	resets   auth.ResetTokenStore
	sessions auth.SessionStore

	// memAccounts and persister are set for the memory backend with a
	// snapshot path; close saves the accounts.
	memAccounts *memory.CredentialStore
	persister   *yamlfile.Persister

	// stopSnapshots ends the periodic snapshot loop, if one runs.
	stopSnapshots func()

	logger  *slog.Logger
	closers []func()
}

// openBackend connects the account store and, when redis is configured, the
// token stores. Reset tokens and sessions follow the account backend
// otherwise.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) (*backend, error) {
	b := &backend{logger: logger}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := deps.PoolFactory(ctx, cfg.Storage.DatabaseURL, logger)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.accounts = postgres.NewAccountRepository(pool)
		b.resets = postgres.NewResetTokenRepository(pool)
		b.sessions = postgres.NewSessionRepository(pool)

	default:
		accounts := memory.NewCredentialStore()
		if cfg.Storage.SnapshotPath != "" {
			b.persister = yamlfile.New(cfg.Storage.SnapshotPath)
			if err := accounts.Load(ctx, b.persister); err != nil {
				return nil, err
			}
			logger.InfoContext(ctx, "accounts loaded", "path", cfg.Storage.SnapshotPath, "count", accounts.Len())
		}
		b.memAccounts = accounts
		b.accounts = accounts
		b.resets = memory.NewResetTokenStore()
		b.sessions = memory.NewSessionStore()
	}

	if cfg.Redis.Addr != "" {
		client, err := deps.RedisFactory(ctx, authredis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			b.close(ctx)
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.resets = authredis.NewResetTokenStore(client)
		b.sessions = authredis.NewSessionStore(client)
	}

	return b, nil
}

// sweepTargets lists the token stores for the Sweeper.
func (b *backend) sweepTargets() []auth.SweepTarget {
	return []auth.SweepTarget{
		{Kind: "reset_token", Store: b.resets},
		{Kind: "session", Store: b.sessions},
	}
}

// save writes the account snapshot, if one is configured.
func (b *backend) save(ctx context.Context) error {
	if b.memAccounts == nil || b.persister == nil {
		return nil
	}
	if err := b.memAccounts.Save(ctx, b.persister); err != nil {
		return err
	}
	b.logger.InfoContext(ctx, "accounts saved", "count", b.memAccounts.Len())
	return nil
}

// startSnapshots saves the accounts every interval while they have unsaved
// changes, until close. It does nothing without a snapshot path.
func (b *backend) startSnapshots(interval time.Duration) {
	if b.memAccounts == nil || b.persister == nil || interval <= 0 || b.stopSnapshots != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.flush(context.Background())
			}
		}
	}()
	b.stopSnapshots = func() {
		close(stop)
		<-done
	}
}

// flush saves the accounts if they changed since the last save.
func (b *backend) flush(ctx context.Context) {
	wrote, err := b.memAccounts.Flush(ctx, b.persister)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to save accounts", "error", err)
		return
	}
	if wrote {
		b.logger.DebugContext(ctx, "accounts saved", "count", b.memAccounts.Len())
	}
}

// close stops periodic snapshots, saves the snapshot and releases
// connections in reverse order.
func (b *backend) close(ctx context.Context) {
	if b.stopSnapshots != nil {
		b.stopSnapshots()
		b.stopSnapshots = nil
	}
	if err := b.save(ctx); err != nil {
		b.logger.ErrorContext(ctx, "failed to save accounts", "error", err)
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// seedAccounts creates the configured seed accounts, skipping any that
// already exist. It returns how many were created.
func seedAccounts(ctx context.Context, accounts auth.CredentialStore, hasher auth.PasswordHasher, seeds []config.SeedAccount, logger *slog.Logger) (int, error) {
	created := 0
	for _, seed := range seeds {
		role := auth.Role(seed.Role)
		if role == "" {
			role = auth.RoleUser
		}
		email := auth.NormalizeEmail(seed.Email)
		if err := auth.ValidateEmail(email); err != nil {
			return created, oops.With("email", seed.Email).Wrap(err)
		}

		hash, err := hasher.Hash(seed.Password)
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("email", email).Wrap(err)
		}
		name := seed.Name
		if name == "" {
			name = email
		}

		if _, err := accounts.Create(ctx, email, name, hash, role); err != nil {
			if errors.Is(err, auth.ErrAlreadyExists) {
				logger.DebugContext(ctx, "seed account exists", "email", email)
				continue
			}
			return created, oops.Code("SEED_FAILED").With("email", email).Wrap(err)
		}
		created++
		logger.InfoContext(ctx, "seed account created", "email", email, "role", string(role))
	}
	return created, nil
}

// newHasher builds the password hasher from configuration.
func newHasher(cfg *config.Config) *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{
		MemoryKiB:   cfg.Hasher.MemoryKiB,
		Iterations:  cfg.Hasher.Iterations,
		Parallelism: cfg.Hasher.Parallelism,
	})
}

// newSessions builds the session manager selected by tokens.mode.
func newSessions(cfg *config.Config, issuer auth.TokenIssuer, sessions auth.SessionStore) (auth.Sessions, error) {
	if cfg.Tokens.Mode == config.TokensSigned {
		return auth.NewSignedSessions(auth.SignedSessionsConfig{
			SigningKey: []byte(cfg.Tokens.SigningKey),
			AccessTTL:  cfg.Tokens.AccessTTL,
			RefreshTTL: cfg.Tokens.RefreshTTL,
		})
	}
	return auth.NewOpaqueSessions(issuer, sessions, auth.OpaqueSessionsConfig{
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	})
}
