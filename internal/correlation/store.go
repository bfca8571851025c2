// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Store persists correlation records.
type Store interface {
	// Save persists one correlation record.
	Save(ctx context.Context, c *Correlation) error

	// Recent returns up to limit records, newest-first.
	Recent(ctx context.Context, limit int) ([]Correlation, error)
}

// correlationKeyPrefix keys records by creation time so Badger's key order
// doubles as chronological order.
const correlationKeyPrefix = "corr:"

// BadgerStore persists correlations in BadgerDB, typically sharing the
// database handle with the ledger's entry store.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a Badger-backed correlation store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func correlationKey(c *Correlation) []byte {
	key := make([]byte, len(correlationKeyPrefix)+8, len(correlationKeyPrefix)+8+len(c.ID))
	copy(key, correlationKeyPrefix)
	binary.BigEndian.PutUint64(key[len(correlationKeyPrefix):], uint64(c.CreatedAt.UnixNano()))
	return append(key, c.ID...)
}

// Save persists one correlation record.
func (s *BadgerStore) Save(ctx context.Context, c *Correlation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(correlationKey(c), data)
	})
}

// Recent returns records newest-first.
func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]Correlation, error) {
	if limit <= 0 {
		limit = 100
	}

	var results []Correlation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(correlationKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(correlationKeyPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid() && len(results) < limit; it.Next() {
			var c Correlation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			results = append(results, c)
		}
		return nil
	})
	return results, err
}

// MemoryStore implements Store in memory for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Correlation
}

// NewMemoryStore creates an empty in-memory correlation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save persists one correlation record.
func (s *MemoryStore) Save(ctx context.Context, c *Correlation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *c)
	return nil
}

// Recent returns records newest-first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var results []Correlation
	for i := len(s.records) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, s.records[i])
	}
	return results, nil
}
