// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package audit

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validEvent() *Event {
	return &Event{
		ID:        "evt-1",
		Timestamp: time.Now().UTC(),
		Type:      EventTypeStageCredential,
		Severity:  SeverityInfo,
		Actor:     Actor{ID: "user-1", Type: "user", SessionID: "sess-1"},
		Action:    "authenticate",
		Outcome:   OutcomeSuccess,
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{
			name:   "valid event",
			mutate: func(*Event) {},
		},
		{
			name:    "missing type",
			mutate:  func(e *Event) { e.Type = "" },
			wantErr: true,
		},
		{
			name:    "missing action",
			mutate:  func(e *Event) { e.Action = "" },
			wantErr: true,
		},
		{
			name:    "missing actor id",
			mutate:  func(e *Event) { e.Actor.ID = "" },
			wantErr: true,
		},
		{
			name:    "unknown severity",
			mutate:  func(e *Event) { e.Severity = "catastrophic" },
			wantErr: true,
		},
		{
			name:    "unknown outcome",
			mutate:  func(e *Event) { e.Outcome = "maybe" },
			wantErr: true,
		},
		{
			name: "too many details",
			mutate: func(e *Event) {
				e.Details = make(map[string]string)
				for i := 0; i < MaxDetailEntries+1; i++ {
					e.Details[strings.Repeat("k", i+1)] = "v"
				}
			},
			wantErr: true,
		},
		{
			name: "oversized detail value",
			mutate: func(e *Event) {
				e.Details = map[string]string{
					"blob": strings.Repeat("x", MaxDetailValueLength+1),
				}
			},
			wantErr: true,
		},
		{
			name: "details at the limits",
			mutate: func(e *Event) {
				e.Details = map[string]string{
					"payload": strings.Repeat("x", MaxDetailValueLength),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(event)
			err := event.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("error %v is not ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	tests := []struct {
		s, other Severity
		want     bool
	}{
		{SeverityCritical, SeverityInfo, true},
		{SeverityError, SeverityWarning, true},
		{SeverityWarning, SeverityWarning, true},
		{SeverityInfo, SeverityWarning, false},
		{Severity("bogus"), SeverityInfo, false},
	}
	for _, tt := range tests {
		if got := tt.s.AtLeast(tt.other); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.s, tt.other, got, tt.want)
		}
	}
}

func TestEventClone(t *testing.T) {
	original := validEvent()
	original.RiskIndicators = []string{"brute_force"}
	original.ComplianceTags = []string{"sox"}
	original.Details = map[string]string{"k": "v"}

	clone := original.Clone()
	clone.RiskIndicators[0] = "changed"
	clone.ComplianceTags[0] = "changed"
	clone.Details["k"] = "changed"
	clone.Actor.ID = "other"

	if original.RiskIndicators[0] != "brute_force" {
		t.Error("clone shares risk indicators with the original")
	}
	if original.ComplianceTags[0] != "sox" {
		t.Error("clone shares compliance tags with the original")
	}
	if original.Details["k"] != "v" {
		t.Error("clone shares details with the original")
	}
	if original.Actor.ID != "user-1" {
		t.Error("clone shares actor with the original")
	}
}

func TestNewStageEvent(t *testing.T) {
	t.Run("known stage", func(t *testing.T) {
		event := NewStageEvent(StageEventInput{
			RequestID: "req-1",
			StageName: "credential",
			ActorID:   "user-1",
			Action:    "authenticate",
			Outcome:   OutcomeSuccess,
			Duration:  60 * time.Millisecond,
		})
		if event.Type != EventTypeStageCredential {
			t.Errorf("type = %s, want %s", event.Type, EventTypeStageCredential)
		}
		if event.Severity != SeverityInfo {
			t.Errorf("severity = %s, want info", event.Severity)
		}
		if event.StageDuration != 60*time.Millisecond {
			t.Errorf("stage duration = %v", event.StageDuration)
		}
		if err := event.Validate(); err != nil {
			t.Errorf("stage event should validate: %v", err)
		}
	})

	t.Run("unknown stage falls back to validation type", func(t *testing.T) {
		event := NewStageEvent(StageEventInput{
			RequestID: "req-1",
			StageName: "mfa",
			ActorID:   "user-1",
			Action:    "authenticate",
			Outcome:   OutcomeSuccess,
		})
		if event.Type != EventTypeStageValidation {
			t.Errorf("type = %s, want %s", event.Type, EventTypeStageValidation)
		}
		if event.Details["stage"] != "mfa" {
			t.Errorf("stage detail = %q, want mfa", event.Details["stage"])
		}
	})

	t.Run("failure escalates severity", func(t *testing.T) {
		event := NewStageEvent(StageEventInput{
			RequestID: "req-1",
			StageName: "policy",
			ActorID:   "user-1",
			Action:    "authenticate",
			Outcome:   OutcomeFailure,
		})
		if event.Severity != SeverityWarning {
			t.Errorf("severity = %s, want warning", event.Severity)
		}
	})
}

func TestNewIncidentEvent(t *testing.T) {
	event := NewIncidentEvent(IncidentEventInput{
		ActorID:        "user-1",
		Action:         "credential_stuffing",
		RiskIndicators: []string{"velocity"},
		ComplianceTags: []string{"pci"},
	})
	if event.Type != EventTypeIncident {
		t.Errorf("type = %s, want %s", event.Type, EventTypeIncident)
	}
	if event.Severity != SeverityWarning {
		t.Errorf("default severity = %s, want warning", event.Severity)
	}
	if event.Outcome != OutcomeFailure {
		t.Errorf("outcome = %s, want failure", event.Outcome)
	}
	if !event.HasComplianceTag("pci") {
		t.Error("compliance tag lost")
	}
}
