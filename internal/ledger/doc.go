// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package ledger implements the append-only, hash-chained audit ledger.
//
// Every appended event is wrapped in an Entry carrying a gap-free sequence
// number, a digest of the event's canonical serialization, the previous
// entry's integrity hash and its own integrity hash. Recomputing the chain
// detects any retroactive edit: a single mutated field breaks either the
// entry's own integrity hash or the next entry's previous-hash link.
//
// The append path is the single point of serialization. Exactly one append
// is in flight at a time; search, verification and aggregation are read-only
// against a sequence-ordered snapshot and run concurrently with appends.
//
// On restart the ledger reloads its chain state (last sequence number and
// last integrity hash) from the tail of the store. Starting against a
// non-empty store whose tail cannot be read is refused outright, since
// appending on stale chain state would silently break the chain.
package ledger
