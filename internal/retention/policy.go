// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package retention

import (
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

// Policy describes the age thresholds applied to ledger entries.
type Policy struct {
	// ArchiveAfter is the age at which entries are copied to archive
	// files. Zero disables archival.
	ArchiveAfter time.Duration

	// RetainFor is the default age at which entries become eligible
	// for deletion. Zero disables deletion.
	RetainFor time.Duration

	// TagOverrides maps compliance tags to retention periods that
	// replace RetainFor for events carrying the tag. When an event
	// carries several overridden tags the longest period applies.
	TagOverrides map[string]time.Duration
}

// DefaultPolicy keeps entries for 90 days and archives after 30.
func DefaultPolicy() Policy {
	return Policy{
		ArchiveAfter: 30 * 24 * time.Hour,
		RetainFor:    90 * 24 * time.Hour,
	}
}

// effectiveRetention returns the retention period for a single event,
// taking the longest of the default period and any tag overrides.
func (p Policy) effectiveRetention(ev *audit.Event) time.Duration {
	retain := p.RetainFor
	for _, tag := range ev.ComplianceTags {
		if override, ok := p.TagOverrides[tag]; ok && override > retain {
			retain = override
		}
	}
	return retain
}

// shouldArchive reports whether an un-archived event of the given age
// is due for archival.
func (p Policy) shouldArchive(age time.Duration) bool {
	return p.ArchiveAfter > 0 && age >= p.ArchiveAfter
}

// shouldDelete reports whether an event of the given age has outlived
// its retention period.
func (p Policy) shouldDelete(ev *audit.Event, age time.Duration) bool {
	retain := p.effectiveRetention(ev)
	return retain > 0 && age >= retain
}
