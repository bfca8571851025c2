// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package supervisor builds the suture/v4 supervision tree that keeps
// the background components running. The tree has three layers for
// failure isolation:
//
//   - data: ledger store maintenance (Badger value-log GC)
//   - background: retention cycles and correlation passes
//   - api: the operational HTTP endpoint
//
// A crash in the background layer restarts only that layer; appends and
// the ops endpoint keep serving.
package supervisor
