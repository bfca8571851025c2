// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package audit

import (
	"strings"
	"time"
)

// DefaultQueryLimit bounds result sets when the caller does not set one.
// Every search is limit-bounded so background readers cannot trigger
// unbounded scans.
const DefaultQueryLimit = 100

// MaxQueryLimit is the hard ceiling on a single query's result count.
const MaxQueryLimit = 10000

// QueryFilter defines filtering options for ledger searches.
// Results are always returned newest-first.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels.
	Severities []Severity `json:"severities,omitempty"`

	// Outcomes filters by outcome.
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// ActorID filters by actor ID.
	ActorID string `json:"actor_id,omitempty"`

	// SessionID filters by the actor's session.
	SessionID string `json:"session_id,omitempty"`

	// RequestID filters by pipeline request ID.
	RequestID string `json:"request_id,omitempty"`

	// ComplianceTag matches events whose tags contain this substring.
	ComplianceTag string `json:"compliance_tag,omitempty"`

	// StartTime is the inclusive beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the exclusive end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Limit is the maximum number of results. Clamped to MaxQueryLimit;
	// DefaultQueryLimit applies when zero.
	Limit int `json:"limit,omitempty"`
}

// EffectiveLimit returns the bounded result limit for this filter.
func (f *QueryFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return f.Limit
	}
}

// Matches reports whether the event satisfies every criterion of the filter.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func (f *QueryFilter) Matches(event *Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, event.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, event.Severity) {
		return false
	}
	if len(f.Outcomes) > 0 && !containsOutcome(f.Outcomes, event.Outcome) {
		return false
	}
	if f.ActorID != "" && event.Actor.ID != f.ActorID {
		return false
	}
	if f.SessionID != "" && event.Actor.SessionID != f.SessionID {
		return false
	}
	if f.RequestID != "" && event.RequestID != f.RequestID {
		return false
	}
	if f.ComplianceTag != "" && !matchesTagSubstring(event.ComplianceTags, f.ComplianceTag) {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && !event.Timestamp.Before(*f.EndTime) {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(severities []Severity, s Severity) bool {
	for _, v := range severities {
		if v == s {
			return true
		}
	}
	return false
}

func containsOutcome(outcomes []Outcome, o Outcome) bool {
	for _, v := range outcomes {
		if v == o {
			return true
		}
	}
	return false
}

func matchesTagSubstring(tags []string, substr string) bool {
	for _, t := range tags {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}
