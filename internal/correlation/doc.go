// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package correlation matches related ledger events against declarative
// rules and scores how well they correlate.
//
// The engine tails the ledger, buffers events in per-(actor, session)
// windows and runs periodic matching passes rather than matching per event,
// which batches work and bounds CPU cost. A matched rule instance produces a
// Correlation record; a score below the rule's anomaly threshold flags the
// correlation as anomalous and, when the rule requests alerting, emits a
// warning event back into the ledger through the same append path used by
// every other writer. History is never edited.
//
// A rule matches when its primary event type is present in a window buffer
// and at least one event of every configured secondary type arrives within
// the rule's time window with equal matching fields.
package correlation
