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
	"testing"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

func testEvent(id string) *audit.Event {
	return &audit.Event{
		ID:       id,
		Type:     audit.EventTypeStageCredential,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{ID: "user-1", SessionID: "sess-1"},
		Action:   "authenticate",
		Outcome:  audit.OutcomeSuccess,
	}
}

func openTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	led, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return led, store
}

func appendN(t *testing.T, led *Ledger, n int) []*Entry {
	t.Helper()
	entries := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := led.Append(context.Background(), testEvent(fmt.Sprintf("evt-%d", i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestAppendBuildsChain(t *testing.T) {
	led, _ := openTestLedger(t)
	entries := appendN(t, led, 3)

	if entries[0].PrevHash != GenesisHash {
		t.Errorf("first entry prev hash = %s, want genesis", entries[0].PrevHash)
	}
	for i, entry := range entries {
		if entry.SequenceNumber != uint64(i+1) {
			t.Errorf("entry %d sequence = %d", i, entry.SequenceNumber)
		}
		if entry.IntegrityHash != entry.Recompute() {
			t.Errorf("entry %d integrity hash not reproducible", i)
		}
		if i > 0 && entry.PrevHash != entries[i-1].IntegrityHash {
			t.Errorf("entry %d prev hash does not link to predecessor", i)
		}
	}
}

func TestAppendAssignsDefaults(t *testing.T) {
	led, _ := openTestLedger(t)

	event := testEvent("")
	event.Timestamp = time.Time{}
	entry, err := led.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.Event.ID == "" {
		t.Error("event ID was not generated")
	}
	if entry.Event.Timestamp.IsZero() {
		t.Error("timestamp was not assigned")
	}
	if event.ID != "" {
		t.Error("caller's event was mutated")
	}
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	led, _ := openTestLedger(t)

	event := testEvent("evt-bad")
	event.Action = ""
	if _, err := led.Append(context.Background(), event); !errors.Is(err, audit.ErrInvalidEvent) {
		t.Fatalf("append error = %v, want ErrInvalidEvent", err)
	}
	if led.LastSequence() != 0 {
		t.Error("rejected append advanced the sequence")
	}
}

func TestAppendRejectsDuplicateEventID(t *testing.T) {
	led, _ := openTestLedger(t)
	appendN(t, led, 1)

	if _, err := led.Append(context.Background(), testEvent("evt-0")); !errors.Is(err, ErrDuplicateEventID) {
		t.Fatalf("append error = %v, want ErrDuplicateEventID", err)
	}
	if led.LastSequence() != 1 {
		t.Errorf("sequence = %d after rejected duplicate, want 1", led.LastSequence())
	}

	// The chain must continue cleanly after the rejection.
	entry, err := led.Append(context.Background(), testEvent("evt-1"))
	if err != nil {
		t.Fatalf("append after duplicate: %v", err)
	}
	if entry.SequenceNumber != 2 {
		t.Errorf("sequence = %d, want 2", entry.SequenceNumber)
	}
}

func TestConcurrentAppendsAreGapFree(t *testing.T) {
	led, _ := openTestLedger(t)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := led.Append(context.Background(), testEvent(fmt.Sprintf("w%d-%d", w, i))); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if got := led.LastSequence(); got != writers*perWriter {
		t.Fatalf("last sequence = %d, want %d", got, writers*perWriter)
	}

	report, err := led.VerifyIntegrity(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Status != StatusValid {
		t.Errorf("status = %s after concurrent appends, anomalies: %+v", report.Status, report.Anomalies)
	}
	if report.Checked != writers*perWriter {
		t.Errorf("checked = %d, want %d", report.Checked, writers*perWriter)
	}
}

func TestOpenRecoversTail(t *testing.T) {
	store := NewMemoryStore()
	led, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	appendN(t, led, 5)

	reopened, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.LastSequence() != 5 {
		t.Fatalf("recovered sequence = %d, want 5", reopened.LastSequence())
	}

	entry, err := reopened.Append(context.Background(), testEvent("after-restart"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if entry.SequenceNumber != 6 {
		t.Errorf("sequence = %d, want 6", entry.SequenceNumber)
	}

	report, err := reopened.VerifyIntegrity(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Status != StatusValid {
		t.Errorf("chain broken across restart: %+v", report.Anomalies)
	}
}

func TestOpenRefusesCorruptTail(t *testing.T) {
	store := NewMemoryStore()
	led, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	appendN(t, led, 2)

	store.mu.Lock()
	store.entries[2].IntegrityHash = ""
	store.mu.Unlock()

	if _, err := Open(context.Background(), store); !errors.Is(err, ErrCorruptTail) {
		t.Fatalf("open error = %v, want ErrCorruptTail", err)
	}
}

func TestSearchFilters(t *testing.T) {
	led, _ := openTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := testEvent(fmt.Sprintf("ok-%d", i))
		if _, err := led.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	failed := testEvent("failed-1")
	failed.Outcome = audit.OutcomeFailure
	failed.Severity = audit.SeverityError
	failed.Actor.ID = "user-2"
	if _, err := led.Append(ctx, failed); err != nil {
		t.Fatalf("append: %v", err)
	}

	t.Run("by outcome", func(t *testing.T) {
		events, err := led.Search(ctx, audit.QueryFilter{Outcomes: []audit.Outcome{audit.OutcomeFailure}})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(events) != 1 || events[0].ID != "failed-1" {
			t.Errorf("got %d events, want the single failure", len(events))
		}
	})

	t.Run("newest first with limit", func(t *testing.T) {
		events, err := led.Search(ctx, audit.QueryFilter{Limit: 3})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		if events[0].ID != "failed-1" {
			t.Errorf("first result = %s, want the newest event", events[0].ID)
		}
	})

	t.Run("by actor", func(t *testing.T) {
		events, err := led.Search(ctx, audit.QueryFilter{ActorID: "user-2"})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("got %d events for user-2, want 1", len(events))
		}
	})
}

func TestFlaggedActors(t *testing.T) {
	led, _ := openTestLedger(t)
	now := time.Now().UTC()
	since := now.Add(-time.Hour)

	flagEvent := func(id string, typ audit.EventType, actorID string, sev audit.Severity, ts time.Time, action string) *audit.Event {
		return &audit.Event{
			ID:        id,
			Timestamp: ts,
			Type:      typ,
			Severity:  sev,
			Actor:     audit.Actor{ID: actorID},
			Action:    action,
			Outcome:   audit.OutcomeFailure,
		}
	}

	events := []*audit.Event{
		// Before the cutoff, never reported.
		flagEvent("stale", audit.EventTypeIncident, "user-a", audit.SeverityCritical, since.Add(-time.Minute), "brute_force"),
		flagEvent("a-1", audit.EventTypeIncident, "user-a", audit.SeverityWarning, since.Add(5*time.Minute), "brute_force"),
		flagEvent("b-1", audit.EventTypeCorrelationAnomaly, "user-b", audit.SeverityWarning, since.Add(10*time.Minute), "credential_stuffing"),
		flagEvent("a-2", audit.EventTypeIncident, "user-a", audit.SeverityCritical, since.Add(15*time.Minute), "brute_force"),
		// Wrong type, never reported.
		flagEvent("noise", audit.EventTypeStageCredential, "user-c", audit.SeverityError, since.Add(20*time.Minute), "authenticate"),
	}
	for _, ev := range events {
		if _, err := led.Append(context.Background(), ev); err != nil {
			t.Fatalf("append %s: %v", ev.ID, err)
		}
	}

	actors, err := led.FlaggedActors(context.Background(), since, 100)
	if err != nil {
		t.Fatalf("FlaggedActors() failed: %v", err)
	}
	if len(actors) != 2 {
		t.Fatalf("FlaggedActors() returned %d actors, want 2: %+v", len(actors), actors)
	}

	// Newest flagged event belongs to user-a, so it leads.
	a := actors[0]
	if a.ActorID != "user-a" {
		t.Fatalf("first actor = %q, want user-a", a.ActorID)
	}
	if a.EventCount != 2 {
		t.Errorf("user-a event count = %d, want 2", a.EventCount)
	}
	if a.MaxSeverity != string(audit.SeverityCritical) {
		t.Errorf("user-a max severity = %q, want critical", a.MaxSeverity)
	}
	if !a.LastSeen.Equal(since.Add(15 * time.Minute)) {
		t.Errorf("user-a last seen = %v, want %v", a.LastSeen, since.Add(15*time.Minute))
	}
	if a.SampleAction != "brute_force" {
		t.Errorf("user-a sample action = %q, want brute_force", a.SampleAction)
	}

	b := actors[1]
	if b.ActorID != "user-b" || b.EventCount != 1 {
		t.Errorf("second actor = %+v, want user-b with one event", b)
	}
	if b.MaxSeverity != string(audit.SeverityWarning) {
		t.Errorf("user-b max severity = %q, want warning", b.MaxSeverity)
	}
}

// faultyStore fails a configurable number of appends with a persistence
// error before delegating to the wrapped store.
type faultyStore struct {
	Store
	failNext int
}

func (s *faultyStore) Append(ctx context.Context, entry *Entry) error {
	if s.failNext > 0 {
		s.failNext--
		return &PersistenceError{Op: "append", Err: errors.New("disk full")}
	}
	return s.Store.Append(ctx, entry)
}

func TestAppendPersistenceFailureLeavesChainStateUnchanged(t *testing.T) {
	store := &faultyStore{Store: NewMemoryStore()}
	led, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	first, err := led.Append(context.Background(), testEvent("evt-ok"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	store.failNext = 2
	for i := 0; i < 2; i++ {
		var perr *PersistenceError
		if _, err := led.Append(context.Background(), testEvent(fmt.Sprintf("evt-fail-%d", i))); !errors.As(err, &perr) {
			t.Fatalf("append %d: err = %v, want PersistenceError", i, err)
		}
		if got := led.LastSequence(); got != first.SequenceNumber {
			t.Fatalf("append %d: LastSequence() = %d, want %d after failed append", i, got, first.SequenceNumber)
		}
	}

	// The store recovers; the next entry continues the chain exactly
	// where the last durable entry left it.
	next, err := led.Append(context.Background(), testEvent("evt-next"))
	if err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if next.SequenceNumber != first.SequenceNumber+1 {
		t.Errorf("sequence = %d, want %d (no gap from failed appends)", next.SequenceNumber, first.SequenceNumber+1)
	}
	if next.PrevHash != first.IntegrityHash {
		t.Errorf("prev hash = %s, want the last durable entry's integrity hash", next.PrevHash)
	}

	report, err := led.VerifyIntegrity(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Status != StatusValid || report.Checked != 2 {
		t.Errorf("status/checked = %s/%d, want valid/2", report.Status, report.Checked)
	}
}
