// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package memory

import "time"

// Option configures a token store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now for expiry decisions.
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
