// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package auth provides credential and session management for authd.
//
// # Domain Types
//
// Account, ResetToken and Session are plain records. Accounts are created by
// a CredentialStore from validated input (see NewAccount); reset tokens and
// sessions are keyed by the SHA-256 of their bearer secret, never the secret.
//
// # Components
//
//   - PasswordHasher - salted argon2id hashing with self-describing PHC output
//   - TokenIssuer - URL-safe random bearer secrets
//   - CredentialStore - email-keyed account records, atomic per email
//   - ResetTokenStore - single-use, expiring password reset tokens
//   - SessionStore - expiring opaque sessions
//   - Sessions - access/refresh token issuance and validation (opaque or signed)
//   - SessionService - register, login, forgot/reset password, validate
//
// Store implementations live in the memory, postgres and redis subpackages.
// Services are created with constructors that validate their dependencies.
package auth
