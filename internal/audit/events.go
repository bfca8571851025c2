// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package audit

import (
	"time"

	"github.com/google/uuid"
)

// StageEventInput carries one stage measurement from the auth pipeline into
// the ledger. This is the inbound boundary for business-logic collaborators;
// no wire format is mandated, a struct call suffices.
type StageEventInput struct {
	RequestID      string
	StageName      string
	ActorID        string
	ActorType      string
	SessionID      string
	TargetResource string
	Action         string
	Outcome        Outcome
	Duration       time.Duration
	SourceAddress  string
	Details        map[string]string
}

// NewStageEvent builds an Event from one pipeline stage measurement.
// Unrecognized stage names fall back to the validation stage type with the
// stage name preserved in Details, so producers with custom stages are not
// rejected.
func NewStageEvent(in StageEventInput) *Event {
	eventType, ok := StageEventTypes[in.StageName]
	if !ok {
		eventType = EventTypeStageValidation
	}

	details := make(map[string]string, len(in.Details)+1)
	for k, v := range in.Details {
		details[k] = v
	}
	details["stage"] = in.StageName

	severity := SeverityInfo
	if in.Outcome == OutcomeFailure {
		severity = SeverityWarning
	}

	return &Event{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		Type:           eventType,
		Severity:       severity,
		Actor:          Actor{ID: in.ActorID, Type: in.ActorType, SessionID: in.SessionID},
		TargetResource: in.TargetResource,
		Action:         in.Action,
		Outcome:        in.Outcome,
		SourceAddress:  in.SourceAddress,
		RequestID:      in.RequestID,
		StageDuration:  in.Duration,
		Details:        details,
	}
}

// IncidentEventInput carries a security incident report into the ledger.
type IncidentEventInput struct {
	ActorID        string
	ActorType      string
	SessionID      string
	TargetResource string
	Action         string
	Severity       Severity
	SourceAddress  string
	RiskIndicators []string
	ComplianceTags []string
	Details        map[string]string
}

// NewIncidentEvent builds an incident Event. Incidents default to warning
// severity when the producer does not set one.
func NewIncidentEvent(in IncidentEventInput) *Event {
	severity := in.Severity
	if !severity.Valid() {
		severity = SeverityWarning
	}

	return &Event{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		Type:           EventTypeIncident,
		Severity:       severity,
		Actor:          Actor{ID: in.ActorID, Type: in.ActorType, SessionID: in.SessionID},
		TargetResource: in.TargetResource,
		Action:         in.Action,
		Outcome:        OutcomeFailure,
		SourceAddress:  in.SourceAddress,
		RiskIndicators: append([]string(nil), in.RiskIndicators...),
		ComplianceTags: append([]string(nil), in.ComplianceTags...),
		Details:        in.Details,
	}
}
