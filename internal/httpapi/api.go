// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package httpapi exposes the SessionService over HTTP.
//
// Request bodies are checked against JSON Schemas reflected from the request
// types; a body that is not JSON or does not match its schema is rejected
// with 422 before the service is called.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/internal/observability"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "authd"

// DefaultRequestTimeout bounds each request.
const DefaultRequestTimeout = 10 * time.Second

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the subset of auth.SessionService the API calls.
type Service interface {
	Register(ctx context.Context, email, password, name string) (*auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	Validate(ctx context.Context, accessToken string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

// API holds the handlers' dependencies.
type API struct {
	svc     Service
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration
	schemas map[string]*jschema.Schema
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *API) { a.timeout = d }
}

// New creates an API over svc.
func New(svc Service, opts ...Option) (*API, error) {
	if svc == nil {
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("service is required")
	}
	a := &API{
		svc:     svc,
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("logger is required")
	}
	if a.timeout <= 0 {
		a.timeout = DefaultRequestTimeout
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	a.schemas = schemas
	return a, nil
}

// Routes returns the HTTP handler.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.timeout))

	r.Get("/", a.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/forgot-password", a.forgotPassword)
		r.Post("/reset-password", a.resetPassword)
		r.Get("/validate", a.validate)
		r.Post("/validate", a.validate)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
	})

	return r
}

// accessLog logs each request and records its metrics once the route is known.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		if a.metrics != nil {
			a.metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			a.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		a.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", elapsed),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
