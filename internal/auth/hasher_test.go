// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := newTestHasher()

	t.Run("produces PHC encoded argon2id hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("never contains the plaintext", func(t *testing.T) {
		hash, err := hasher.Hash("plaintext-secret")
		require.NoError(t, err)
		assert.NotContains(t, hash, "plaintext-secret")
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("rejects oversized password", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("x", 1025))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_PASSWORD_TOO_LONG")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := newTestHasher()

	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("correctpassword", hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("wrongpassword", hash))
	})

	t.Run("verifies hashes made with other parameters", func(t *testing.T) {
		other := auth.NewArgon2idHasher(auth.Argon2Params{MemoryKiB: 128, Iterations: 2, Parallelism: 2})
		otherHash, err := other.Hash("correctpassword")
		require.NoError(t, err)
		assert.True(t, hasher.Verify("correctpassword", otherHash))
	})

	malformed := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not a hash", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bcrypt", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"},
		{"bad version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"unknown version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bad parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA"},
		{"bad key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"memory too large", "$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdA$aGFzaA"},
		{"zero iterations", "$argon2id$v=19$m=64,t=0,p=1$c2FsdA$aGFzaA"},
		{"leading garbage", "x$argon2id$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA"},
	}
	for _, tt := range malformed {
		t.Run("malformed hash returns false: "+tt.name, func(t *testing.T) {
			assert.False(t, hasher.Verify("password", tt.hash))
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	hasher := newTestHasher()

	t.Run("current parameters do not need rehash", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsRehash(hash))
	})

	t.Run("different parameters need rehash", func(t *testing.T) {
		weaker := auth.NewArgon2idHasher(auth.Argon2Params{MemoryKiB: 32, Iterations: 1, Parallelism: 1})
		hash, err := weaker.Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsRehash(hash))
	})

	t.Run("foreign hash needs rehash", func(t *testing.T) {
		assert.True(t, hasher.NeedsRehash("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})
}

func TestNewArgon2idHasher_Defaults(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{})
	hash, err := hasher.Hash("password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
}
