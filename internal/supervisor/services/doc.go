// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package services adapts long-running components to the suture.Service
// contract. Each wrapper uses a narrow local interface instead of the
// concrete type, which keeps the supervision layer free of domain
// imports and makes the wrappers trivial to test.
package services
