// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Command server runs the auditchain daemon: it opens the ledger,
// starts the retention manager, the correlation engine and the
// operational HTTP endpoint under a supervision tree, and shuts the
// whole tree down on SIGINT or SIGTERM.
package main
