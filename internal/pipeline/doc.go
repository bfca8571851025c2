// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package pipeline records per-stage measurements of authentication pipeline
// runs and rolls finalized runs up into interval statistics.
//
// The Recorder accumulates stage results keyed by request ID, computes
// end-to-end metrics on finalization and emits one event per stage plus one
// summary event into the ledger. The Aggregator reads summary events back
// out of the ledger to produce counts, averages, percentiles and SLA
// compliance rates for monitoring consumers.
//
// Total duration of a run is defined as the sum of its stage durations. The
// four pipeline stages run sequentially, so the sum matches wall-clock time;
// callers measuring overlapping custom stages should treat totals as
// cumulative stage cost, not elapsed time.
package pipeline
