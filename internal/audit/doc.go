// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package audit defines the immutable event model shared by every component:
// the ledger appends events, the correlation engine matches them, the
// retention manager archives them and the aggregator rolls them up.
//
// An Event describes one observable action in the authentication pipeline
// (a stage outcome, a security incident, a correlation summary). Events are
// value types; once appended to the ledger they are never mutated. The
// Details map is deliberately map[string]string rather than open-ended
// map[string]any so that canonical serialization, and therefore event
// hashing, stays deterministic.
package audit
