// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const (
	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes

	// Upper bounds accepted when parsing a stored hash. A tampered hash must
	// not be able to make Verify allocate or spin without limit.
	maxArgon2Memory  = 1 << 22 // 4 GiB in KiB
	maxArgon2Time    = 64
	maxArgon2KeyLen  = 1024
	maxPasswordBytes = 1024
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  1,
	Parallelism: 4,
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher turns plaintext passwords into salted, self-describing hashes
// and verifies candidates against them.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. A malformed hash never
	// matches; Verify does not fail.
	Verify(password, hash string) bool

	// NeedsRehash reports whether hash was produced with different parameters
	// than the hasher currently uses.
	NeedsRehash(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher. Zero-valued fields in params
// fall back to DefaultArgon2Params.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2Params.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", oops.Code("AUTH_PASSWORD_TOO_LONG").
			With("max_bytes", maxPasswordBytes).
			Errorf("password exceeds %d bytes", maxPasswordBytes)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash using the parameters and
// salt embedded in the hash. Comparison is constant-time.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	if len(password) > maxPasswordBytes {
		return false
	}
	decoded, ok := decodeArgon2Hash(encodedHash)
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), decoded.salt, decoded.params.Iterations,
		decoded.params.MemoryKiB, decoded.params.Parallelism, uint32(len(decoded.key))) //nolint:gosec // bounded by maxArgon2KeyLen

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1
}

// NeedsRehash returns true if the hash is not argon2id or uses other parameters.
func (h *Argon2idHasher) NeedsRehash(encodedHash string) bool {
	decoded, ok := decodeArgon2Hash(encodedHash)
	if !ok {
		return true
	}
	return decoded.params != h.params
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2Hash(encoded string) (argon2Hash, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argon2Hash{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Hash{}, false
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return argon2Hash{}, false
	}
	// threads must fit in uint8 to prevent silent truncation
	if memory == 0 || memory > maxArgon2Memory || iterations == 0 || iterations > maxArgon2Time ||
		threads == 0 || threads > 255 {
		return argon2Hash{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return argon2Hash{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLen {
		return argon2Hash{}, false
	}

	return argon2Hash{
		params: Argon2Params{MemoryKiB: memory, Iterations: iterations, Parallelism: uint8(threads)},
		salt:   salt,
		key:    key,
	}, true
}
