// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package config loads runtime configuration through three layers:
// struct defaults, an optional YAML file and environment variables,
// each layer overriding the previous one.
package config
