// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/bagbot/authd/internal/config"
	"github.com/bagbot/authd/internal/xdg"
)

// NewRootCmd creates the root command for the authd CLI.
func NewRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "authd",
		Short: "authd - credential and session service",
		Long: `authd registers accounts, authenticates them with argon2id-hashed
passwords, issues access and refresh tokens, and runs the password reset flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/authd/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	load := func(c *cobra.Command) (*config.Config, error) {
		return loadConfig(configFile, c)
	}

	cmd.AddCommand(NewServeCmd(load))
	cmd.AddCommand(NewMigrateCmd(load))
	cmd.AddCommand(NewSeedCmd(load))
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// configLoader resolves the configuration for a running subcommand.
type configLoader func(cmd *cobra.Command) (*config.Config, error)

// loadConfig reads path, or the XDG default config file when path is empty.
func loadConfig(path string, cmd *cobra.Command) (*config.Config, error) {
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
