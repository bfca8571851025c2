// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("ledger: entry not found")

// ErrDuplicateEventID is returned when an appended event's ID already exists
// in the ledger. Event IDs are unique across the ledger's lifetime.
var ErrDuplicateEventID = errors.New("ledger: duplicate event id")

// ErrCorruptTail is returned by Open when the store is non-empty but its
// highest entry cannot be read. Appending on stale chain state would silently
// break the chain, so startup is refused instead.
var ErrCorruptTail = errors.New("ledger: cannot recover chain state from store tail")

// PersistenceError wraps a durable read/write failure. Appends failing with a
// PersistenceError leave the in-memory chain state unchanged; the ledger does
// not retry internally, to avoid duplicate-with-gap sequence assignment.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
