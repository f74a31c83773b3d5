// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// connectAttempts bounds the PING retries made by Connect.
const connectAttempts = 5

// ClientConfig addresses a Redis server.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and waits until the server answers PING, retrying
// with exponential backoff.
func Connect(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			logger.WarnContext(ctx, "redis not ready, retrying", "addr", cfg.Addr, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Addr).Wrap(err)
	}
	logger.InfoContext(ctx, "redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}
