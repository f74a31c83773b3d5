// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/internal/config"
	"github.com/bagbot/authd/pkg/errutil"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, config.TokensOpaque, cfg.Tokens.Mode)
	assert.Equal(t, time.Hour, cfg.Tokens.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.Tokens.ResetTTL)
	assert.Equal(t, uint32(64*1024), cfg.Hasher.MemoryKiB)
	assert.Equal(t, uint8(4), cfg.Hasher.Parallelism)
	assert.Equal(t, config.DefaultSnapshotInterval, cfg.Storage.SnapshotInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := writeFile(t, `
http:
  addr: 0.0.0.0:9000
log:
  format: text
tokens:
  reset_ttl: 30m
seed:
  accounts:
    - email: admin@bagbot.com
      name: Admin
      password: admin123
      role: admin
`)

	t.Run("file values beat flag defaults", func(t *testing.T) {
		cfg, err := config.Load(path, newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.Addr)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, 30*time.Minute, cfg.Tokens.ResetTTL)
		require.Len(t, cfg.Seed.Accounts, 1)
		assert.Equal(t, "admin", cfg.Seed.Accounts[0].Role)
	})

	t.Run("explicit flags beat the file", func(t *testing.T) {
		cfg, err := config.Load(path, newFlags(t, "--http-addr=127.0.0.1:7000", "--reset-ttl=5m"))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", cfg.HTTP.Addr)
		assert.Equal(t, 5*time.Minute, cfg.Tokens.ResetTTL)
		assert.Equal(t, "text", cfg.Log.Format)
	})
}

func TestLoad_DatabaseURLFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@localhost/authd")

	cfg, err := config.Load("", newFlags(t, "--storage=postgres"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@localhost/authd", cfg.Storage.DatabaseURL)
	require.NoError(t, cfg.Validate())

	cfg, err = config.Load("", newFlags(t, "--storage=postgres", "--database-url=postgres://flag@localhost/authd"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag@localhost/authd", cfg.Storage.DatabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"bad log format", []string{"--log-format=xml"}, "log.format"},
		{"bad backend", []string{"--storage=sqlite"}, "storage.backend"},
		{"postgres without url", []string{"--storage=postgres"}, "storage.database_url"},
		{"bad token mode", []string{"--token-mode=magic"}, "tokens.mode"},
		{"signed without key", []string{"--token-mode=signed"}, "tokens.signing_key"},
		{"short key", []string{"--token-mode=signed", "--signing-key=short"}, "tokens.signing_key"},
		{"negative ttl", []string{"--access-ttl=-1s"}, "tokens.access_ttl"},
		{"negative snapshot interval", []string{"--snapshot-interval=-1s"}, "storage.snapshot_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("", newFlags(t, tt.args...))
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	t.Run("signed with key", func(t *testing.T) {
		cfg, err := config.Load("", newFlags(t, "--token-mode=signed", "--signing-key=0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	})
}
