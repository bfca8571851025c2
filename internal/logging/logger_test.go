// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCtxCarriesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	ctx := ContextWithCorrelationID(context.Background(), "corr-123")
	ctx = ContextWithRequestID(ctx, "req-456")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "corr-123") {
		t.Errorf("output missing correlation id: %s", out)
	}
	if !strings.Contains(out, "req-456") {
		t.Errorf("output missing request id: %s", out)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if a == b {
		t.Error("correlation IDs collide")
	}
	if len(a) != 8 {
		t.Errorf("correlation ID %q length = %d, want 8", a, len(a))
	}
}

func TestSlogLoggerBridges(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	slogger := NewSlogLogger()
	slogger.Info("supervised service started", "service", "retention-manager")

	out := buf.String()
	if !strings.Contains(out, "supervised service started") {
		t.Errorf("slog message lost: %s", out)
	}
	if !strings.Contains(out, "retention-manager") {
		t.Errorf("slog attr lost: %s", out)
	}
}
