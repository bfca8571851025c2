// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package audit

import (
	"fmt"
	"time"

	"github.com/tomtom215/auditchain/internal/validation"
)

// EventType categorizes audit events.
type EventType string

const (
	// Pipeline stage events, one per completed stage of a pipeline run.
	EventTypeStageValidation EventType = "stage.validation"
	EventTypeStageCredential EventType = "stage.credential"
	EventTypeStagePolicy     EventType = "stage.policy"
	EventTypeStagePermission EventType = "stage.permission"

	// EventTypePipelineSummary is emitted once per finalized pipeline run.
	EventTypePipelineSummary EventType = "pipeline.summary"

	// Security events
	EventTypeIncident EventType = "security.incident"

	// Correlation engine output
	EventTypeCorrelationSummary EventType = "correlation.summary"
	EventTypeCorrelationAnomaly EventType = "correlation.anomaly"

	// Compliance events
	EventTypeComplianceCheck EventType = "compliance.check"
)

// StageEventTypes maps pipeline stage names to their event types.
var StageEventTypes = map[string]EventType{
	"validation": EventTypeStageValidation,
	"credential": EventTypeStageCredential,
	"policy":     EventTypeStagePolicy,
	"permission": EventTypeStagePermission,
}

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is equal to or more severe than other.
// Unknown severities rank below info.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Outcome indicates how an action concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"

	// OutcomeUnknown marks stages that never reported before finalization.
	OutcomeUnknown Outcome = "unknown"
)

// Actor represents who or what performed an action.
type Actor struct {
	// ID is the unique identifier (user ID, service account, token subject).
	ID string `json:"id" validate:"required"`

	// Type of actor (user, service, system).
	Type string `json:"type,omitempty"`

	// SessionID groups events belonging to one logical session.
	SessionID string `json:"session_id,omitempty"`
}

// Details bounds for a single event. Oversized detail maps make hashing and
// archival costs unpredictable, so they are rejected at validation time.
const (
	MaxDetailEntries     = 32
	MaxDetailValueLength = 1024
)

// Event is one immutable audit record.
type Event struct {
	// ID is globally unique across the ledger's lifetime. Generated when the
	// caller leaves it empty.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type" validate:"required"`

	// Severity of the event.
	Severity Severity `json:"severity" validate:"required,oneof=info warning error critical"`

	// Actor who performed the action.
	Actor Actor `json:"actor"`

	// TargetResource the action was applied to.
	TargetResource string `json:"target_resource,omitempty"`

	// Action describes what was done.
	Action string `json:"action" validate:"required"`

	// Outcome indicates how the action concluded.
	Outcome Outcome `json:"outcome" validate:"required,oneof=success failure partial unknown"`

	// SourceAddress of the originating client, when known.
	SourceAddress string `json:"source_address,omitempty"`

	// RequestID links stage events belonging to one pipeline run.
	RequestID string `json:"request_id,omitempty"`

	// StageDuration is the measured duration for stage events.
	StageDuration time.Duration `json:"stage_duration,omitempty"`

	// RiskIndicators are suspicious-pattern flags attached by producers.
	RiskIndicators []string `json:"risk_indicators,omitempty"`

	// ComplianceTags drive per-tag retention overrides.
	ComplianceTags []string `json:"compliance_tags,omitempty"`

	// Details holds event-specific key-value context. Size-bounded; keys are
	// serialized in canonical order when the event is hashed.
	Details map[string]string `json:"details,omitempty"`
}

// Validate checks the required fields and the Details bounds. Events failing
// validation are rejected before the ledger's append lock is taken.
func (e *Event) Validate() error {
	if verr := validation.ValidateStruct(e); verr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, verr.Error())
	}
	if len(e.Details) > MaxDetailEntries {
		return fmt.Errorf("%w: details has %d entries, limit %d",
			ErrInvalidEvent, len(e.Details), MaxDetailEntries)
	}
	for k, v := range e.Details {
		if len(v) > MaxDetailValueLength {
			return fmt.Errorf("%w: detail %q exceeds %d bytes",
				ErrInvalidEvent, k, MaxDetailValueLength)
		}
	}
	return nil
}

// HasComplianceTag reports whether the event carries the given tag.
func (e *Event) HasComplianceTag(tag string) bool {
	for _, t := range e.ComplianceTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the event. The ledger clones events before
// assigning defaults so callers never observe mutation of their argument.
func (e *Event) Clone() *Event {
	clone := *e
	if e.RiskIndicators != nil {
		clone.RiskIndicators = append([]string(nil), e.RiskIndicators...)
	}
	if e.ComplianceTags != nil {
		clone.ComplianceTags = append([]string(nil), e.ComplianceTags...)
	}
	if e.Details != nil {
		clone.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}
