// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// IntegrityStatus is the overall verdict of a verification run.
type IntegrityStatus string

const (
	StatusValid       IntegrityStatus = "valid"
	StatusCompromised IntegrityStatus = "compromised"
)

// AnomalyKind classifies one integrity finding.
type AnomalyKind string

const (
	// AnomalyHashMismatch means an entry's stored integrity hash does not
	// match the hash recomputed from its own fields.
	AnomalyHashMismatch AnomalyKind = "hash_mismatch"

	// AnomalyEventTampered means the stored event no longer hashes to the
	// entry's recorded event hash.
	AnomalyEventTampered AnomalyKind = "event_tampered"

	// AnomalyChainBreak means an entry's previous-hash does not match the
	// preceding entry's integrity hash.
	AnomalyChainBreak AnomalyKind = "chain_break"

	// AnomalyGap means a sequence number is missing from the scanned range.
	// Retention deletes produce sanctioned gaps, so a gap alone does not
	// mark the ledger compromised.
	AnomalyGap AnomalyKind = "gap"
)

// Anomaly is one integrity finding, always reported in full with the
// offending sequence number and both hash values. Never auto-corrected:
// self-healing would defeat tamper evidence.
type Anomaly struct {
	Sequence uint64      `json:"sequence"`
	Kind     AnomalyKind `json:"kind"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
	Message  string      `json:"message"`
}

// IntegrityReport is the result of one verification run. Verification is
// pure: running it twice over an unmodified range yields identical reports.
type IntegrityReport struct {
	Status    IntegrityStatus `json:"status"`
	FromSeq   uint64          `json:"from_seq"`
	ToSeq     uint64          `json:"to_seq"`
	Checked   int             `json:"checked"`
	Anomalies []Anomaly       `json:"anomalies,omitempty"`
}

// Default verification pacing. The chunk size bounds how many entries
// one read loads, so a caller can cancel between chunks and appends are
// never starved by a long walk. The rate paces chunk reads per second.
const (
	defaultVerifyChunkSize = 512
	defaultVerifyChunkRate = 64
)

// ConfigureVerification overrides the verification chunk size and chunk
// rate. Non-positive values keep the defaults. Call before starting
// verification walks; not safe concurrently with VerifyIntegrity.
func (l *Ledger) ConfigureVerification(chunkSize, chunksPerSecond int) {
	if chunkSize > 0 {
		l.verifyChunk = chunkSize
	}
	if chunksPerSecond > 0 {
		l.verifyRate = chunksPerSecond
	}
}

// VerifyIntegrity re-walks entries in [fromSeq, toSeq] in sequence order,
// recomputing each integrity hash and checking each previous-hash link.
// Read-only and safe to run concurrently with appends. toSeq of zero means
// "up to the current chain tail".
func (l *Ledger) VerifyIntegrity(ctx context.Context, fromSeq, toSeq uint64) (*IntegrityReport, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	if toSeq == 0 {
		toSeq = l.LastSequence()
	}

	chunkSize := l.verifyChunk
	if chunkSize <= 0 {
		chunkSize = defaultVerifyChunkSize
	}
	chunkRate := l.verifyRate
	if chunkRate <= 0 {
		chunkRate = defaultVerifyChunkRate
	}

	report := &IntegrityReport{Status: StatusValid, FromSeq: fromSeq, ToSeq: toSeq}
	limiter := rate.NewLimiter(rate.Limit(chunkRate), 1)

	var prev *Entry
	next := fromSeq
	for next <= toSeq {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		chunk, err := l.store.Scan(ctx, next, chunkSize)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}

		for i := range chunk {
			entry := &chunk[i]
			if entry.SequenceNumber > toSeq {
				next = toSeq + 1
				break
			}
			l.verifyEntry(report, prev, entry)
			prevCopy := *entry
			prev = &prevCopy
			report.Checked++
			next = entry.SequenceNumber + 1
		}

		if len(chunk) < chunkSize {
			break
		}
	}

	metrics.IntegrityVerifications.WithLabelValues(string(report.Status)).Inc()
	if n := len(report.Anomalies); n > 0 {
		metrics.IntegrityAnomalies.Add(float64(n))
	}
	if report.Status == StatusCompromised {
		logging.Error().
			Uint64("from_seq", report.FromSeq).
			Uint64("to_seq", report.ToSeq).
			Int("anomalies", len(report.Anomalies)).
			Msg("ledger integrity compromised")
	}
	return report, nil
}

// verifyEntry checks one entry's hashes and its link to the previous entry.
func (l *Ledger) verifyEntry(report *IntegrityReport, prev, entry *Entry) {
	if eventHash, err := ComputeEventHash(&entry.Event); err == nil && eventHash != entry.EventHash {
		report.Status = StatusCompromised
		report.Anomalies = append(report.Anomalies, Anomaly{
			Sequence: entry.SequenceNumber,
			Kind:     AnomalyEventTampered,
			Expected: entry.EventHash,
			Actual:   eventHash,
			Message: fmt.Sprintf("entry %d: stored event does not hash to recorded event hash",
				entry.SequenceNumber),
		})
	}

	if recomputed := entry.Recompute(); recomputed != entry.IntegrityHash {
		report.Status = StatusCompromised
		report.Anomalies = append(report.Anomalies, Anomaly{
			Sequence: entry.SequenceNumber,
			Kind:     AnomalyHashMismatch,
			Expected: recomputed,
			Actual:   entry.IntegrityHash,
			Message: fmt.Sprintf("entry %d: integrity hash not reproducible from fields",
				entry.SequenceNumber),
		})
	}

	switch {
	case prev == nil:
		// First scanned entry. Only the true genesis entry has a defined
		// predecessor to check against.
		if entry.SequenceNumber == 1 && entry.PrevHash != GenesisHash {
			report.Status = StatusCompromised
			report.Anomalies = append(report.Anomalies, Anomaly{
				Sequence: 1,
				Kind:     AnomalyChainBreak,
				Expected: GenesisHash,
				Actual:   entry.PrevHash,
				Message:  "genesis entry has non-genesis previous hash",
			})
		}
	case entry.SequenceNumber == prev.SequenceNumber+1:
		if entry.PrevHash != prev.IntegrityHash {
			report.Status = StatusCompromised
			report.Anomalies = append(report.Anomalies, Anomaly{
				Sequence: entry.SequenceNumber,
				Kind:     AnomalyChainBreak,
				Expected: prev.IntegrityHash,
				Actual:   entry.PrevHash,
				Message: fmt.Sprintf("entry %d: previous hash does not match entry %d",
					entry.SequenceNumber, prev.SequenceNumber),
			})
		}
	default:
		// Sequence gap. Retention deletions are sanctioned, so the gap is
		// recorded without flipping the status.
		report.Anomalies = append(report.Anomalies, Anomaly{
			Sequence: entry.SequenceNumber,
			Kind:     AnomalyGap,
			Message: fmt.Sprintf("sequence gap: %d follows %d",
				entry.SequenceNumber, prev.SequenceNumber),
		})
	}
}
