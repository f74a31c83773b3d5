// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/samber/oops"
)

// MinTokenBytes is the minimum entropy of an issued token. At 256 bits the
// collision probability is negligible, so issued tokens are treated as unique
// without a uniqueness check.
const MinTokenBytes = 32

// TokenIssuer mints opaque bearer secrets.
type TokenIssuer interface {
	// Issue returns a URL-safe token drawn from byteLength random bytes.
	Issue(byteLength int) (string, error)
}

// RandomTokenIssuer implements TokenIssuer with crypto/rand.
type RandomTokenIssuer struct{}

// NewRandomTokenIssuer creates a RandomTokenIssuer.
func NewRandomTokenIssuer() *RandomTokenIssuer {
	return &RandomTokenIssuer{}
}

// Issue returns a base64url (unpadded) token of byteLength random bytes.
func (RandomTokenIssuer) Issue(byteLength int) (string, error) {
	if byteLength < MinTokenBytes {
		return "", oops.Code("TOKEN_TOO_SHORT").
			With("requested_bytes", byteLength).
			With("min_bytes", MinTokenBytes).
			Errorf("token must be at least %d bytes", MinTokenBytes)
	}

	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", byteLength).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the hex SHA-256 of a bearer token. Stores key entries by
// this value so that a store dump does not reveal live secrets.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash in
// constant time.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
