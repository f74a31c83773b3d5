// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/pkg/errutil"
)

type fakeMigrator struct {
	url     string
	pending []uint
	version uint
	dirty   bool
	forced  int
	ups     int
	downs   int
	closed  bool
	err     error
}

func (m *fakeMigrator) Up() error                          { m.ups++; return m.err }
func (m *fakeMigrator) Down() error                        { m.downs++; return m.err }
func (m *fakeMigrator) Version() (uint, bool, error)       { return m.version, m.dirty, m.err }
func (m *fakeMigrator) Force(v int) error                  { m.forced = v; return m.err }
func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }
func (m *fakeMigrator) Close() error                       { m.closed = true; return nil }

func useFakeMigrator(t *testing.T, m *fakeMigrator) {
	t.Helper()
	orig := migratorFactory
	migratorFactory = func(url string) (Migrator, error) {
		m.url = url
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = orig })
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "negative is valid", input: "-1", wantVersion: -1},
		{name: "surrounding whitespace is trimmed", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "trailing characters", input: "3abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseForceVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, v)
		})
	}
}

func TestMigrateCommands(t *testing.T) {
	const url = "postgres://authd@localhost:5432/authd"

	t.Run("up applies pending", func(t *testing.T) {
		m := &fakeMigrator{pending: []uint{2, 3}}
		useFakeMigrator(t, m)

		out, err := execute(t, "migrate", "up", "--storage", "postgres", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, 1, m.ups)
		assert.Equal(t, url, m.url)
		assert.True(t, m.closed)
		assert.Contains(t, out, "Applying 2 migration(s)")
	})

	t.Run("up with nothing pending", func(t *testing.T) {
		m := &fakeMigrator{}
		useFakeMigrator(t, m)

		out, err := execute(t, "migrate", "up", "--database-url", url)
		require.NoError(t, err)
		assert.Zero(t, m.ups)
		assert.Contains(t, out, "No pending migrations")
	})

	t.Run("version reports dirty", func(t *testing.T) {
		m := &fakeMigrator{version: 2, dirty: true}
		useFakeMigrator(t, m)

		out, err := execute(t, "migrate", "version", "--database-url", url)
		require.NoError(t, err)
		assert.Contains(t, out, "Version: 2 (dirty)")
	})

	t.Run("down", func(t *testing.T) {
		m := &fakeMigrator{}
		useFakeMigrator(t, m)

		_, err := execute(t, "migrate", "down", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, 1, m.downs)
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		useFakeMigrator(t, m)

		_, err := execute(t, "migrate", "force", "2", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, 2, m.forced)
	})

	t.Run("migrator error propagates", func(t *testing.T) {
		m := &fakeMigrator{pending: []uint{1}, err: errors.New("boom")}
		useFakeMigrator(t, m)

		_, err := execute(t, "migrate", "up", "--database-url", url)
		require.Error(t, err)
		assert.True(t, m.closed)
	})

	t.Run("database url required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		useFakeMigrator(t, &fakeMigrator{})

		_, err := execute(t, "migrate", "up")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
