// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package yamlfile persists the in-memory account set as a YAML snapshot so
// accounts survive a restart of a memory-backed server.
package yamlfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/bagbot/authd/internal/auth"
)

// snapshotVersion is bumped on incompatible format changes.
const snapshotVersion = 1

type snapshot struct {
	Version  int             `yaml:"version"`
	Accounts []accountRecord `yaml:"accounts"`
}

type accountRecord struct {
	ID           string     `yaml:"id"`
	Email        string     `yaml:"email"`
	Name         string     `yaml:"name"`
	PasswordHash string     `yaml:"password_hash"`
	Role         string     `yaml:"role"`
	CreatedAt    time.Time  `yaml:"created_at"`
	LastLogin    *time.Time `yaml:"last_login,omitempty"`
}

// Persister reads and writes account snapshots at a file path.
type Persister struct {
	path string
}

// New creates a Persister for path.
func New(path string) *Persister {
	return &Persister{path: path}
}

// LoadAccounts reads the snapshot. A missing file is an empty account set.
func (p *Persister) LoadAccounts(_ context.Context) ([]*auth.Account, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SNAPSHOT_READ_FAILED").With("path", p.path).Wrap(err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, oops.Code("SNAPSHOT_PARSE_FAILED").With("path", p.path).Wrap(err)
	}
	if snap.Version != snapshotVersion {
		return nil, oops.Code("SNAPSHOT_VERSION_UNSUPPORTED").
			With("path", p.path).
			With("version", snap.Version).
			Errorf("unsupported snapshot version %d", snap.Version)
	}

	accounts := make([]*auth.Account, 0, len(snap.Accounts))
	for i, rec := range snap.Accounts {
		id, err := ulid.Parse(rec.ID)
		if err != nil {
			return nil, oops.Code("SNAPSHOT_PARSE_FAILED").With("path", p.path).With("index", i).Wrap(err)
		}
		role := auth.Role(rec.Role)
		if !role.Valid() {
			return nil, oops.Code("SNAPSHOT_PARSE_FAILED").
				With("path", p.path).
				With("index", i).
				Errorf("unknown role %q", rec.Role)
		}
		accounts = append(accounts, &auth.Account{
			ID:           id,
			Email:        auth.NormalizeEmail(rec.Email),
			Name:         rec.Name,
			PasswordHash: rec.PasswordHash,
			Role:         role,
			CreatedAt:    rec.CreatedAt,
			LastLogin:    rec.LastLogin,
		})
	}
	return accounts, nil
}

// SaveAccounts writes the snapshot atomically: a temp file in the same
// directory is renamed over the target.
func (p *Persister) SaveAccounts(_ context.Context, accounts []*auth.Account) error {
	snap := snapshot{Version: snapshotVersion, Accounts: make([]accountRecord, 0, len(accounts))}
	for _, a := range accounts {
		snap.Accounts = append(snap.Accounts, accountRecord{
			ID:           a.ID.String(),
			Email:        a.Email,
			Name:         a.Name,
			PasswordHash: a.PasswordHash,
			Role:         string(a.Role),
			CreatedAt:    a.CreatedAt.UTC(),
			LastLogin:    a.LastLogin,
		})
	}

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("operation", "marshal").Wrap(err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("path", p.path).With("operation", "mkdir").Wrap(err)
	}
	tmp, err := os.CreateTemp(dir, ".accounts-*.yaml")
	if err != nil {
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("path", p.path).With("operation", "create temp").Wrap(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("path", p.path).With("operation", "write").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("path", p.path).With("operation", "close").Wrap(err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return oops.Code("SNAPSHOT_WRITE_FAILED").With("path", p.path).With("operation", "rename").Wrap(err)
	}
	return nil
}
