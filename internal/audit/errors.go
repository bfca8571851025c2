// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package audit

import "errors"

// ErrInvalidEvent marks events rejected by validation before they reach the
// ledger's append path.
var ErrInvalidEvent = errors.New("invalid audit event")
