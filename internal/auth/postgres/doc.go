// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package postgres provides PostgreSQL implementations of the auth stores.
// Tokens are stored by their SHA-256 digest, never in plaintext.
package postgres

import "time"

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
