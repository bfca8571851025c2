// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/auditchain/internal/audit"
)

// Store is the durable medium behind the ledger. Any implementation must
// provide atomic append, ordered scan by sequence number and durability
// sufficient to recover the chain tail across restarts.
type Store interface {
	// Append persists one entry atomically. It must fail with
	// ErrDuplicateEventID when the event ID already exists.
	Append(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by sequence number.
	Get(ctx context.Context, seq uint64) (*Entry, error)

	// Last returns the entry with the highest sequence number, or
	// ErrNotFound when the store is empty.
	Last(ctx context.Context) (*Entry, error)

	// Scan returns up to limit entries with sequence >= fromSeq in
	// ascending sequence order.
	Scan(ctx context.Context, fromSeq uint64, limit int) ([]Entry, error)

	// Query returns events matching the filter, newest-first, bounded by
	// the filter's effective limit.
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)

	// MarkArchived flags an entry as archived. Hash fields are untouched.
	MarkArchived(ctx context.Context, seq uint64) error

	// Delete removes the given entries and returns how many were removed.
	// Only the retention manager calls this.
	Delete(ctx context.Context, seqs []uint64) (int, error)

	// Close releases store resources.
	Close() error
}

// MemoryStore implements Store in memory. Suitable for tests and
// development; data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
	seqs    []uint64 // ascending
	ids     map[string]uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[uint64]*Entry),
		ids:     make(map[string]uint64),
	}
}

// Append persists one entry.
func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[entry.Event.ID]; exists {
		return ErrDuplicateEventID
	}

	clone := *entry
	s.entries[entry.SequenceNumber] = &clone
	s.seqs = append(s.seqs, entry.SequenceNumber)
	s.ids[entry.Event.ID] = entry.SequenceNumber
	return nil
}

// Get retrieves an entry by sequence number.
func (s *MemoryStore) Get(ctx context.Context, seq uint64) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[seq]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

// Last returns the highest-sequence entry.
func (s *MemoryStore) Last(ctx context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.seqs) == 0 {
		return nil, ErrNotFound
	}
	clone := *s.entries[s.seqs[len(s.seqs)-1]]
	return &clone, nil
}

// Scan returns entries in ascending sequence order starting at fromSeq.
func (s *MemoryStore) Scan(ctx context.Context, fromSeq uint64, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.seqs), func(i int) bool { return s.seqs[i] >= fromSeq })

	var results []Entry
	for i := start; i < len(s.seqs); i++ {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, *s.entries[s.seqs[i]])
	}
	return results, nil
}

// Query returns matching events newest-first.
func (s *MemoryStore) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.EffectiveLimit()

	var results []audit.Event
	for i := len(s.seqs) - 1; i >= 0; i-- {
		entry := s.entries[s.seqs[i]]
		if !filter.Matches(&entry.Event) {
			continue
		}
		results = append(results, entry.Event)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// MarkArchived flags an entry as archived.
func (s *MemoryStore) MarkArchived(ctx context.Context, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[seq]
	if !ok {
		return ErrNotFound
	}
	entry.Archived = true
	return nil
}

// Delete removes entries by sequence number.
func (s *MemoryStore) Delete(ctx context.Context, seqs []uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, seq := range seqs {
		entry, ok := s.entries[seq]
		if !ok {
			continue
		}
		delete(s.ids, entry.Event.ID)
		delete(s.entries, seq)
		removed++
	}

	if removed > 0 {
		kept := s.seqs[:0]
		for _, seq := range s.seqs {
			if _, ok := s.entries[seq]; ok {
				kept = append(kept, seq)
			}
		}
		s.seqs = kept
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
