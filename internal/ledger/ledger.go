// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// chainState is the mutable tail of the hash chain. It is owned exclusively
// by one Ledger instance, loaded once at Open and mutated only inside the
// append critical section.
type chainState struct {
	lastSeq  uint64
	lastHash string
}

// Ledger is the append-only, hash-chained audit ledger.
type Ledger struct {
	store Store

	// mu serializes appends. Exactly one append is in flight at a time,
	// which guarantees gap-free sequence numbers and a verifiable chain.
	mu    sync.Mutex
	state chainState

	// Verification pacing overrides, zero means default.
	verifyChunk int
	verifyRate  int
}

// Open creates a Ledger over the given store, recovering the chain state
// from the store's tail. A non-empty store with an unreadable tail refuses
// to open: appending on stale chain state would silently break the chain.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	l := &Ledger{store: store}

	last, err := store.Last(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		l.state = chainState{lastSeq: 0, lastHash: GenesisHash}
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrCorruptTail, err)
	default:
		if last.IntegrityHash == "" {
			return nil, fmt.Errorf("%w: tail entry %d has empty integrity hash",
				ErrCorruptTail, last.SequenceNumber)
		}
		l.state = chainState{lastSeq: last.SequenceNumber, lastHash: last.IntegrityHash}
	}

	logging.Info().
		Uint64("last_seq", l.state.lastSeq).
		Msg("ledger opened")
	metrics.LedgerSequence.Set(float64(l.state.lastSeq))
	return l, nil
}

// Append validates the event, assigns the next sequence number and persists
// the entry atomically. On persistence failure the in-memory chain state
// does not advance; the ledger never retries internally.
//
// Validation and event hashing happen before the lock is taken, so the
// critical section covers only sequence assignment and the store write.
func (l *Ledger) Append(ctx context.Context, event *audit.Event) (*Entry, error) {
	start := time.Now()

	event = event.Clone()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		metrics.ObserveAppend("validation_error", 0)
		return nil, err
	}

	eventHash, err := ComputeEventHash(event)
	if err != nil {
		metrics.ObserveAppend("validation_error", 0)
		return nil, fmt.Errorf("%w: %v", audit.ErrInvalidEvent, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.state.lastSeq + 1
	entry := &Entry{
		SequenceNumber: seq,
		Event:          *event,
		EventHash:      eventHash,
		PrevHash:       l.state.lastHash,
		IntegrityHash:  ComputeIntegrityHash(seq, eventHash, l.state.lastHash),
	}

	if err := l.store.Append(ctx, entry); err != nil {
		metrics.ObserveAppend("persistence_error", 0)
		return nil, err
	}

	l.state.lastSeq = seq
	l.state.lastHash = entry.IntegrityHash

	metrics.ObserveAppend("ok", time.Since(start))
	metrics.LedgerSequence.Set(float64(seq))
	return entry, nil
}

// Search returns events matching the filter, newest-first and bounded by
// the filter's effective limit. Read-only; runs concurrently with appends.
func (l *Ledger) Search(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	metrics.LedgerSearches.Inc()
	return l.store.Query(ctx, filter)
}

// Get retrieves one entry by sequence number.
func (l *Ledger) Get(ctx context.Context, seq uint64) (*Entry, error) {
	return l.store.Get(ctx, seq)
}

// LastSequence returns the highest assigned sequence number.
func (l *Ledger) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.lastSeq
}

// Store exposes the underlying store to ledger-adjacent components (the
// retention manager). Write access outside the append path is limited to
// archival flags and retention deletes.
func (l *Ledger) Store() Store {
	return l.store
}

// FlaggedActor is a convenience view row for dashboards and CLIs, built
// purely from Search.
type FlaggedActor struct {
	ActorID      string    `json:"actor_id"`
	EventCount   int       `json:"event_count"`
	LastSeen     time.Time `json:"last_seen"`
	MaxSeverity  string    `json:"max_severity"`
	SampleAction string    `json:"sample_action"`
}

// FlaggedActors returns actors with incident or anomaly events since the
// given time, most recently seen first within the search bound.
func (l *Ledger) FlaggedActors(ctx context.Context, since time.Time, limit int) ([]FlaggedActor, error) {
	events, err := l.Search(ctx, audit.QueryFilter{
		Types:     []audit.EventType{audit.EventTypeIncident, audit.EventTypeCorrelationAnomaly},
		StartTime: &since,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	byActor := make(map[string]*FlaggedActor)
	order := make([]string, 0)
	for _, event := range events {
		actor, ok := byActor[event.Actor.ID]
		if !ok {
			actor = &FlaggedActor{
				ActorID:      event.Actor.ID,
				LastSeen:     event.Timestamp,
				MaxSeverity:  string(event.Severity),
				SampleAction: event.Action,
			}
			byActor[event.Actor.ID] = actor
			order = append(order, event.Actor.ID)
		}
		actor.EventCount++
		if event.Timestamp.After(actor.LastSeen) {
			actor.LastSeen = event.Timestamp
		}
		if event.Severity.AtLeast(audit.Severity(actor.MaxSeverity)) {
			actor.MaxSeverity = string(event.Severity)
		}
	}

	results := make([]FlaggedActor, 0, len(order))
	for _, id := range order {
		results = append(results, *byActor[id])
	}
	return results, nil
}
