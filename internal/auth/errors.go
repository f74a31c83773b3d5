// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"errors"

	"github.com/bagbot/authd/pkg/errutil"
)

// Store-level sentinel errors. Store implementations wrap these so callers can
// match with errors.Is; they never cross the SessionService boundary raw.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating an entity whose unique key is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrExpired is returned when a token exists but is at or past its expiry.
	// The entry is removed as a side effect of the lookup that observed it.
	ErrExpired = errors.New("expired")
)

// Error codes surfaced by SessionService. This set is closed: every failure a
// caller can observe carries one of these codes or is an internal error.
const (
	CodeDuplicateAccount      = "AUTH_DUPLICATE_ACCOUNT"
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidOrExpiredToken = "RESET_TOKEN_INVALID"
	CodeInvalidToken          = "SESSION_INVALID"
	CodeInvalidInput          = "AUTH_INVALID_INPUT"
)

var rejectionCodes = []string{
	CodeDuplicateAccount,
	CodeInvalidCredentials,
	CodeInvalidOrExpiredToken,
	CodeInvalidToken,
	CodeInvalidInput,
}

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	return errutil.HasCode(err, code)
}

// IsRejection reports whether err is one of the caller-facing failures
// (bad input, bad credentials, bad token) rather than an internal fault.
func IsRejection(err error) bool {
	return errutil.HasCode(err, rejectionCodes...)
}
