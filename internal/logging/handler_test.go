// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup("authd", "1.0.0", "json", &buf).Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "authd", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.NotContains(t, entry, "trace_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup("authd", "1.0.0", "text", &buf).Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "service=authd")
}

func TestSetup_UnknownFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup("authd", "1.0.0", "", &buf).Info("test message")
	decode(t, &buf)
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authd", "1.0.0", "json", &buf)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authd", "1.0.0", "json", &buf).With("token", "with-attrs-secret")

	logger.Info("login",
		"email", "a@x.com",
		"password", "hunter2",
		"Refresh_Token", "rt-secret",
		slog.Group("req", slog.String("authorization", "Bearer abc")),
	)

	out := buf.String()
	for _, secret := range []string{"hunter2", "rt-secret", "Bearer abc", "with-attrs-secret"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, "a@x.com")
	assert.Contains(t, out, Redacted)
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("authd", "2.0.0", "json")
	assert.Same(t, logger, slog.Default())
}
