// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package retention enforces age-based lifecycle rules on ledger entries.
//
// A Manager runs periodic cycles over the ledger store. Each cycle
// archives entries older than the archive threshold into gzip-compressed
// JSONL files grouped by day and event type, then deletes entries past
// their retention period. Compliance tags can extend retention per tag;
// the longest applicable period wins. Deletions create sequence gaps in
// the chain, which integrity verification reports without treating the
// ledger as compromised.
//
// Deletions and archivals are operational actions, logged and counted
// through metrics. They are never recorded as ledger entries themselves.
package retention
