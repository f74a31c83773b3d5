// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/config"
	"github.com/bagbot/authd/internal/httpapi"
	"github.com/bagbot/authd/internal/logging"
)

const (
	serviceName     = "authd"
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the authd HTTP API together with the metrics/health server
and the background sweeper that removes expired reset tokens and sessions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger := logging.Setup(serviceName, version, cfg.Log.Format, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return runServeWithDeps(cmd.Context(), cfg, logger, nil)
		},
	}
}

// runServeWithDeps runs the service until ctx is cancelled or SIGINT/SIGTERM
// arrives. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	deps = deps.withDefaults()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting authd",
		"http_addr", cfg.HTTP.Addr,
		"storage", cfg.Storage.Backend,
		"token_mode", cfg.Tokens.Mode,
		"redis", cfg.Redis.Addr != "",
	)

	b, err := openBackend(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		b.close(closeCtx)
	}()

	hasher := newHasher(cfg)
	issuer := auth.NewRandomTokenIssuer()

	if len(cfg.Seed.Accounts) > 0 {
		created, seedErr := seedAccounts(ctx, b.accounts, hasher, cfg.Seed.Accounts, logger)
		if seedErr != nil {
			return seedErr
		}
		logger.InfoContext(ctx, "seed accounts applied", "created", created)
	}

	b.startSnapshots(cfg.Storage.SnapshotInterval)

	sessions, err := newSessions(cfg, issuer, b.sessions)
	if err != nil {
		return err
	}
	svc, err := auth.NewSessionService(b.accounts, b.resets, sessions, hasher, issuer,
		auth.WithLogger(logger),
		auth.WithResetTTL(cfg.Tokens.ResetTTL),
		auth.WithResetNotifier(auth.NewLogNotifier(logger)),
	)
	if err != nil {
		return err
	}

	sweeper := auth.NewSweeper(cfg.Sweeper.Interval, logger, b.sweepTargets()...)
	defer sweeper.Close()

	var ready atomic.Bool
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithRequestTimeout(cfg.HTTP.RequestTimeout),
	}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, auth.RegisterMetrics)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		apiOpts = append(apiOpts, httpapi.WithMetrics(obsServer.Metrics()))
	}

	api, err := httpapi.New(svc, apiOpts...)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()

	ready.Store(true)
	logger.InfoContext(ctx, "authd ready", "addr", listener.Addr().String())
	deps.OnReady(listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr := <-apiErrCh:
		if serveErr != nil {
			runErr = oops.Code("SERVE_FAILED").Wrap(serveErr)
		}
	}
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP API", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return runErr
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels the run context when a server fails. It exits
// when an error arrives, the channel closes, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
