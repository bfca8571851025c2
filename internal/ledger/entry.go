// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gowebpki/jcs"

	"github.com/tomtom215/auditchain/internal/audit"
)

// GenesisHash is the previous-hash value of the first ledger entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry wraps one Event with its position in the hash chain. Entries are
// created once at append time and never mutated; retention may move them to
// cold storage, which does not alter the hash fields.
type Entry struct {
	// SequenceNumber is strictly increasing and gap-free at append time,
	// assigned under the ledger's exclusive append lock.
	SequenceNumber uint64 `json:"sequence_number"`

	// Event is the wrapped immutable event.
	Event audit.Event `json:"event"`

	// EventHash is the SHA-256 digest of the event's canonical (RFC 8785)
	// JSON serialization.
	EventHash string `json:"event_hash"`

	// PrevHash is the integrity hash of the immediately preceding entry, or
	// GenesisHash for entry #1.
	PrevHash string `json:"prev_hash"`

	// IntegrityHash is the SHA-256 digest over sequence number, event hash
	// and previous hash. It is reproducible purely from those three fields.
	IntegrityHash string `json:"integrity_hash"`

	// Archived is set by the retention manager once the entry has been
	// written to cold storage. Not part of any hash.
	Archived bool `json:"archived,omitempty"`
}

// ComputeEventHash returns the SHA-256 hex digest of the event's canonical
// JSON form. Canonicalization (sorted object keys, normalized numbers) makes
// the digest independent of map iteration order and encoder quirks.
func ComputeEventHash(event *audit.Event) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event %s: %w", event.ID, err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeIntegrityHash returns the SHA-256 hex digest binding a sequence
// number, an event hash and the previous entry's integrity hash.
func ComputeIntegrityHash(seq uint64, eventHash, prevHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", seq, eventHash, prevHash)))
	return hex.EncodeToString(sum[:])
}

// Recompute returns the integrity hash implied by the entry's stored fields.
func (e *Entry) Recompute() string {
	return ComputeIntegrityHash(e.SequenceNumber, e.EventHash, e.PrevHash)
}
