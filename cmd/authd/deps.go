// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	authredis "github.com/bagbot/authd/internal/auth/redis"
	"github.com/bagbot/authd/internal/observability"
	"github.com/bagbot/authd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Open with default retry options
	PoolFactory func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error)

	// RedisFactory connects to Redis.
	// Default: authredis.Connect
	RedisFactory func(ctx context.Context, cfg authredis.ClientConfig, logger *slog.Logger) (*goredis.Client, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, regs ...observability.Registration) ObservabilityServer

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// OnReady is called with the API address once requests are accepted.
	OnReady func(addr string)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
			return store.Open(ctx, url, logger, store.ConnectOptions{})
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = authredis.Connect
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, regs ...observability.Registration) ObservabilityServer {
			return observability.NewServer(addr, ready, regs...)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.OnReady == nil {
		out.OnReady = func(string) {}
	}
	return &out
}
