// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type validateResponse struct {
	Valid     bool       `json:"valid"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Service: ServiceName})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !a.decode(w, r, SchemaRegister, &req) {
		return
	}
	result, err := a.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !a.decode(w, r, SchemaLogin, &req) {
		return
	}
	result, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// forgotPassword answers identically whether or not the account exists. The
// token goes to the service's notifier and never into the response.
func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !a.decode(w, r, SchemaForgotPassword, &req) {
		return
	}
	if _, err := a.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: MsgResetRequested})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !a.decode(w, r, SchemaResetPassword, &req) {
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: MsgResetDone})
}

// validate always answers 200; the body says whether the bearer token is live.
func (a *API) validate(w http.ResponseWriter, r *http.Request) {
	session, err := a.svc.Validate(r.Context(), bearerToken(r))
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusInternalServerError {
			a.logger.ErrorContext(r.Context(), "token validation failed", "error", err)
		}
		writeJSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}
	expiresAt := session.ExpiresAt.UTC()
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:     true,
		UserID:    session.SubjectID.String(),
		Email:     session.Email,
		Role:      string(session.Role),
		ExpiresAt: &expiresAt,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !a.decode(w, r, SchemaRefresh, &req) {
		return
	}
	tokens, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "missing bearer token"})
		return
	}
	if err := a.svc.Logout(r.Context(), token); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: MsgLoggedOut})
}

// decode reads the body, validates it against the named schema and decodes
// it into dst. On failure it writes a 422 and returns false.
func (a *API) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "request body too large or unreadable"})
		return false
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "request body is not valid JSON"})
		return false
	}
	if err := a.schemas[schema].Validate(doc); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "request body does not match schema: " + err.Error()})
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "request body is not valid JSON"})
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
