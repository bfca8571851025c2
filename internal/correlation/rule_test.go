// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr bool
	}{
		{"valid rule", func(*Rule) {}, false},
		{"missing id", func(r *Rule) { r.ID = "" }, true},
		{"zero window", func(r *Rule) { r.TimeWindow = 0 }, true},
		{"no match fields", func(r *Rule) { r.MatchFields = nil }, true},
		{"unknown match field", func(r *Rule) { r.MatchFields = []MatchField{"favorite_color"} }, true},
		{"missing primary", func(r *Rule) { r.PrimaryType = "" }, true},
		{"no secondaries", func(r *Rule) { r.SecondaryTypes = nil }, true},
		{"threshold above one", func(r *Rule) { r.AnomalyThreshold = 1.5 }, true},
		{"negative threshold", func(r *Rule) { r.AnomalyThreshold = -0.1 }, true},
		{"max delay beyond window", func(r *Rule) { r.MaxDelay = 20 * time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule()
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrRuleConfiguration) {
					t.Fatalf("error = %v, want ErrRuleConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFieldValue(t *testing.T) {
	event := &audit.Event{
		Actor:          audit.Actor{ID: "user-1", SessionID: "sess-1"},
		RequestID:      "req-1",
		TargetResource: "/api/orders",
		SourceAddress:  "10.0.0.1",
	}

	tests := []struct {
		field MatchField
		want  string
	}{
		{MatchActorID, "user-1"},
		{MatchSessionID, "sess-1"},
		{MatchRequestID, "req-1"},
		{MatchResource, "/api/orders"},
		{MatchSourceAddress, "10.0.0.1"},
		{MatchField("bogus"), ""},
	}
	for _, tt := range tests {
		if got := fieldValue(event, tt.field); got != tt.want {
			t.Errorf("fieldValue(%s) = %q, want %q", tt.field, got, tt.want)
		}
	}
}
