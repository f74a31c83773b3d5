// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bagbot/authd/internal/config"
	"github.com/bagbot/authd/internal/logging"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd(load configLoader) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the configured seed accounts",
		Long: `Creates the accounts listed under seed.accounts in the config file.
This command is idempotent - existing accounts are left untouched.
With the memory backend, --snapshot-path is required so the result persists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger := logging.Setup(serviceName, version, cfg.Log.Format, cmd.ErrOrStderr())

			// cmd.Context() carries SIGINT/SIGTERM cancellation.
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSeed(ctx, cmd, cfg, logger, nil)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")
	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	if cfg.Storage.Backend == config.BackendMemory && cfg.Storage.SnapshotPath == "" {
		return oops.Code("CONFIG_INVALID").Errorf("seeding the memory backend requires storage.snapshot_path")
	}
	if len(cfg.Seed.Accounts) == 0 {
		cmd.Println("No seed accounts configured")
		return nil
	}

	b, err := openBackend(ctx, cfg, logger, deps.withDefaults())
	if err != nil {
		return err
	}
	defer b.close(context.WithoutCancel(ctx))

	created, err := seedAccounts(ctx, b.accounts, newHasher(cfg), cfg.Seed.Accounts, logger)
	if err != nil {
		return err
	}
	cmd.Printf("Created %d of %d seed account(s)\n", created, len(cfg.Seed.Accounts))
	return nil
}
