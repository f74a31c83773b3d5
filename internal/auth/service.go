// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bagbot/auth")

// Operation names used for spans and metrics.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
	OpValidate       = "validate"
	OpRefresh        = "refresh"
	OpLogout         = "logout"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   AccountView `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// SessionService composes the credential, reset and session components into
// the register / login / forgot-password / reset-password / validate flows.
// Store errors are translated into the closed set of codes in errors.go.
type SessionService struct {
	accounts  CredentialStore
	resets    ResetTokenStore
	sessions  Sessions
	hasher    PasswordHasher
	issuer    TokenIssuer
	notifier  ResetNotifier
	logger    *slog.Logger
	now       func() time.Time
	resetTTL  time.Duration
	dummyHash string
}

// ServiceOption configures a SessionService.
type ServiceOption func(*SessionService)

// WithLogger sets the logger. A nil logger is rejected by NewSessionService.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *SessionService) { s.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SessionService) { s.now = now }
}

// WithResetTTL sets how long reset tokens stay valid.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *SessionService) { s.resetTTL = ttl }
}

// WithResetNotifier sets where issued reset tokens are delivered.
func WithResetNotifier(n ResetNotifier) ServiceOption {
	return func(s *SessionService) { s.notifier = n }
}

// NewSessionService creates a SessionService.
func NewSessionService(
	accounts CredentialStore,
	resets ResetTokenStore,
	sessions Sessions,
	hasher PasswordHasher,
	issuer TokenIssuer,
	opts ...ServiceOption,
) (*SessionService, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if resets == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("reset token store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	}

	s := &SessionService{
		accounts: accounts,
		resets:   resets,
		sessions: sessions,
		hasher:   hasher,
		issuer:   issuer,
		logger:   slog.Default(),
		now:      time.Now,
		resetTTL: ResetTokenExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.now == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
	}
	if s.resetTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("reset_ttl", s.resetTTL).Errorf("reset ttl must be positive")
	}

	// Unknown emails are verified against this hash so that a login for a
	// missing account costs the same as one with a wrong password. It is
	// derived from a random secret and therefore matches nothing.
	secret, err := issuer.Issue(MinTokenBytes)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("operation", "generate dummy secret").Wrap(err)
	}
	if s.dummyHash, err = hasher.Hash(secret); err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("operation", "hash dummy secret").Wrap(err)
	}

	return s, nil
}

// begin starts a span for op. The returned func ends it, recording err and
// the operation metrics.
func (s *SessionService) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.SetAttributes(attribute.Bool("auth.rejected", IsRejection(err)))
			if !IsRejection(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		observe(op, start, err)
	}
}

// Register creates an account with role user and issues it a token pair.
func (s *SessionService) Register(ctx context.Context, email, password, name string) (_ *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpRegister)
	defer end(&err)

	email = NormalizeEmail(email)
	if err = ValidateEmail(email); err != nil {
		return nil, err
	}
	if err = ValidateName(name); err != nil {
		return nil, err
	}
	if err = validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := s.accounts.Create(ctx, email, name, hash, RoleUser)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeDuplicateAccount).Errorf("email already registered")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err)
	}

	tokens, err := s.sessions.Issue(ctx, account)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	return &AuthResult{User: account.View(), Tokens: tokens}, nil
}

// Login authenticates email and password. An unknown email and a wrong
// password produce the same error and run the same password verification.
func (s *SessionService) Login(ctx context.Context, email, password string) (_ *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpLogin)
	defer end(&err)

	account, lookupErr := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	targetHash := s.dummyHash
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		account = nil
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "find account").Wrap(lookupErr)
	}

	// Always verify, even for unknown accounts.
	valid := s.hasher.Verify(password, targetHash)
	if account == nil || !valid {
		s.logger.InfoContext(ctx, "login rejected")
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, account.Email, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"account_id", account.ID.String(),
			"error", err,
		)
	} else {
		account.LastLogin = &now
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		s.rehash(ctx, account, password)
	}

	tokens, err := s.sessions.Issue(ctx, account)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID.String())
	return &AuthResult{User: account.View(), Tokens: tokens}, nil
}

// rehash upgrades a stored hash to the current parameters. Login succeeds
// regardless of the outcome.
func (s *SessionService) rehash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.accounts.UpdatePassword(ctx, account.Email, newHash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to upgrade password hash",
			"account_id", account.ID.String(),
			"error", err,
		)
		return
	}
	account.PasswordHash = newHash
}

// ForgotPassword creates a reset token if email belongs to an account. The
// outcome is the same whether or not the account exists: the token is
// returned to in-process callers (and handed to the notifier) only when one
// was stored, and it is empty otherwise. Callers facing end users must
// respond identically in both cases.
func (s *SessionService) ForgotPassword(ctx context.Context, email string) (_ string, err error) {
	ctx, end := s.begin(ctx, OpForgotPassword)
	defer end(&err)

	// Mint first so both paths pay for it.
	token, err := s.issuer.Issue(ResetTokenBytes)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "issue token").Wrap(err)
	}

	email = NormalizeEmail(email)
	if ValidateEmail(email) != nil {
		return "", nil
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "find account").Wrap(err)
	}

	if err := s.resets.Put(ctx, token, account.Email, s.resetTTL); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "store reset token").Wrap(err)
	}

	expiresAt := s.now().Add(s.resetTTL)
	s.logger.InfoContext(ctx, "password reset requested",
		"account_id", account.ID.String(),
		"expires_at", expiresAt,
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyReset(ctx, account.Email, token, expiresAt); err != nil {
			s.logger.WarnContext(ctx, "failed to deliver reset token",
				"account_id", account.ID.String(),
				"error", err,
			)
		}
	}

	return token, nil
}

// ResetPassword consumes a reset token, sets a new password and revokes the
// account's sessions. Once the token has been consumed it cannot be used
// again, whatever happens after. A revocation failure is returned even
// though the new password is already in place.
func (s *SessionService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, end := s.begin(ctx, OpResetPassword)
	defer end(&err)

	if err = validatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return oops.Code(CodeInvalidOrExpiredToken).Errorf("invalid or expired reset token")
	}

	email, err := s.resets.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
			return oops.Code(CodeInvalidOrExpiredToken).Errorf("invalid or expired reset token")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "consume token").Wrap(err)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidOrExpiredToken).Errorf("invalid or expired reset token")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "find account").Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.Email, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidOrExpiredToken).Errorf("invalid or expired reset token")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}

	// Tokens issued under the old password must not outlive it.
	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "revoke sessions").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID.String())
	return nil
}

// Validate returns the session an access token authenticates.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (_ *Session, err error) {
	ctx, end := s.begin(ctx, OpValidate)
	defer end(&err)

	return s.sessions.Validate(ctx, accessToken)
}

// Refresh exchanges a refresh token for a new token pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (_ TokenPair, err error) {
	ctx, end := s.begin(ctx, OpRefresh)
	defer end(&err)

	return s.sessions.Refresh(ctx, refreshToken)
}

// Logout revokes an access token.
func (s *SessionService) Logout(ctx context.Context, accessToken string) (err error) {
	ctx, end := s.begin(ctx, OpLogout)
	defer end(&err)

	return s.sessions.Revoke(ctx, accessToken)
}

func validatePassword(password string) error {
	if password == "" {
		return oops.Code(CodeInvalidInput).With("field", "password").Errorf("password cannot be empty")
	}
	if len(password) > maxPasswordBytes {
		return oops.Code(CodeInvalidInput).
			With("field", "password").
			With("max_bytes", maxPasswordBytes).
			Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}
