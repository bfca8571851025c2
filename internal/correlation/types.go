// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"time"
)

// Correlation is the persisted output of one matched rule instance. Created
// once, never mutated; a newer correlation for the same key is an additional
// record, preserving audit history.
type Correlation struct {
	// ID uniquely identifies this correlation record.
	ID string `json:"id"`

	// RuleID names the rule that matched.
	RuleID string `json:"rule_id"`

	// PrimaryEventID anchors the correlation.
	PrimaryEventID string `json:"primary_event_id"`

	// SecondaryEventIDs in arrival order.
	SecondaryEventIDs []string `json:"secondary_event_ids"`

	// ActorID and SessionID identify the window key that produced the match.
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id,omitempty"`

	// Score in [0,1]; see Engine scoring.
	Score float64 `json:"score"`

	// TimeSpan from the primary event to the last secondary.
	TimeSpan time.Duration `json:"time_span"`

	// Anomaly is set when Score fell below the rule's threshold.
	Anomaly bool `json:"anomaly"`

	// CreatedAt is when the matching pass produced this record.
	CreatedAt time.Time `json:"created_at"`
}
