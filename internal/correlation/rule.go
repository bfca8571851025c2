// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

// ErrRuleConfiguration marks malformed correlation rules. Rules are rejected
// at registration, never at match time.
var ErrRuleConfiguration = errors.New("correlation: invalid rule configuration")

// MatchField names an event field that must be equal across correlated
// events.
type MatchField string

const (
	MatchActorID       MatchField = "actor_id"
	MatchSessionID     MatchField = "session_id"
	MatchRequestID     MatchField = "request_id"
	MatchResource      MatchField = "target_resource"
	MatchSourceAddress MatchField = "source_address"
)

// knownMatchFields guards against typos in rule definitions.
var knownMatchFields = map[MatchField]bool{
	MatchActorID:       true,
	MatchSessionID:     true,
	MatchRequestID:     true,
	MatchResource:      true,
	MatchSourceAddress: true,
}

// fieldValue extracts a match field's value from an event.
func fieldValue(event *audit.Event, field MatchField) string {
	switch field {
	case MatchActorID:
		return event.Actor.ID
	case MatchSessionID:
		return event.Actor.SessionID
	case MatchRequestID:
		return event.RequestID
	case MatchResource:
		return event.TargetResource
	case MatchSourceAddress:
		return event.SourceAddress
	default:
		return ""
	}
}

// Rule declaratively describes one correlation: a primary event type echoed
// by secondary event types within a time window.
type Rule struct {
	// ID uniquely names the rule.
	ID string `json:"id" validate:"required"`

	// TimeWindow bounds how far apart primary and secondary events may be.
	TimeWindow time.Duration `json:"time_window" validate:"required,gt=0"`

	// MatchFields must be equal across all matched events.
	MatchFields []MatchField `json:"match_fields" validate:"required,min=1"`

	// PrimaryType is the anchoring event type.
	PrimaryType audit.EventType `json:"primary_type" validate:"required"`

	// SecondaryTypes must each appear at least once within the window.
	SecondaryTypes []audit.EventType `json:"secondary_types" validate:"required,min=1"`

	// MaxDelay is the expected arrival delay of secondaries; later arrivals
	// are penalized in the score.
	MaxDelay time.Duration `json:"max_delay"`

	// AnomalyThreshold in [0,1]: a score below it flags an anomaly.
	AnomalyThreshold float64 `json:"anomaly_threshold" validate:"gte=0,lte=1"`

	// Alert emits a warning event into the ledger for anomalous matches.
	Alert bool `json:"alert"`
}

// Validate checks structural constraints on the rule.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrRuleConfiguration)
	}
	if r.TimeWindow <= 0 {
		return fmt.Errorf("%w: rule %s: time window must be positive", ErrRuleConfiguration, r.ID)
	}
	if len(r.MatchFields) == 0 {
		return fmt.Errorf("%w: rule %s: at least one match field", ErrRuleConfiguration, r.ID)
	}
	for _, field := range r.MatchFields {
		if !knownMatchFields[field] {
			return fmt.Errorf("%w: rule %s: unknown match field %q", ErrRuleConfiguration, r.ID, field)
		}
	}
	if r.PrimaryType == "" {
		return fmt.Errorf("%w: rule %s: primary type is required", ErrRuleConfiguration, r.ID)
	}
	if len(r.SecondaryTypes) == 0 {
		return fmt.Errorf("%w: rule %s: at least one secondary type", ErrRuleConfiguration, r.ID)
	}
	if r.AnomalyThreshold < 0 || r.AnomalyThreshold > 1 {
		return fmt.Errorf("%w: rule %s: anomaly threshold %f outside [0,1]",
			ErrRuleConfiguration, r.ID, r.AnomalyThreshold)
	}
	if r.MaxDelay < 0 || r.MaxDelay > r.TimeWindow {
		return fmt.Errorf("%w: rule %s: max delay must be within the time window",
			ErrRuleConfiguration, r.ID)
	}
	return nil
}
