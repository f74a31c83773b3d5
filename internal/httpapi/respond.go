// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bagbot/authd/internal/auth"
	"github.com/bagbot/authd/pkg/errutil"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Response messages.
const (
	MsgResetRequested = "If the email exists, a reset link has been sent"
	MsgResetDone      = "Password reset successful"
	MsgLoggedOut      = "Logged out"
	msgInternal       = "internal server error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a SessionService rejection code to an HTTP status.
func statusFor(err error) (int, string) {
	switch {
	case auth.HasCode(err, auth.CodeDuplicateAccount):
		return http.StatusBadRequest, auth.CodeDuplicateAccount
	case auth.HasCode(err, auth.CodeInvalidCredentials):
		return http.StatusUnauthorized, auth.CodeInvalidCredentials
	case auth.HasCode(err, auth.CodeInvalidOrExpiredToken):
		return http.StatusBadRequest, auth.CodeInvalidOrExpiredToken
	case auth.HasCode(err, auth.CodeInvalidToken):
		return http.StatusUnauthorized, auth.CodeInvalidToken
	case auth.HasCode(err, auth.CodeInvalidInput):
		return http.StatusUnprocessableEntity, auth.CodeInvalidInput
	default:
		return http.StatusInternalServerError, ""
	}
}

// writeError logs err and writes it as a JSON error. Internal errors are
// replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	errutil.Log(r.Context(), logger.With("path", r.URL.Path), "request failed", err, auth.IsRejection)

	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, errorResponse{Detail: msgInternal})
		return
	}
	// Rejections are created fresh with a fixed message and carry no cause.
	writeJSON(w, status, errorResponse{Detail: err.Error(), Code: code})
}
