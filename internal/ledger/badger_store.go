// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/auditchain/internal/audit"
)

// Key prefixes for BadgerDB storage. Entries are keyed by big-endian
// sequence number so Badger's lexicographic iteration yields sequence order.
const (
	entryKeyPrefix   = "entry:"
	eventIDKeyPrefix = "event_id:"
)

// BadgerStore implements Store using BadgerDB for durable, ordered storage.
// This is the production store: atomic appends via transactions, ordered
// scans via key iteration, crash-safe recovery of the chain tail.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed ledger store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// DB exposes the underlying database so other components can share it.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// entryKey returns the storage key for a sequence number.
func entryKey(seq uint64) []byte {
	key := make([]byte, len(entryKeyPrefix)+8)
	copy(key, entryKeyPrefix)
	binary.BigEndian.PutUint64(key[len(entryKeyPrefix):], seq)
	return key
}

// Append persists one entry atomically, together with its event-ID index
// record. Both writes commit in a single transaction.
func (s *BadgerStore) Append(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return &PersistenceError{Op: "marshal entry", Err: err}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(eventIDKeyPrefix + entry.Event.ID)
		if _, err := txn.Get(idKey); err == nil {
			return ErrDuplicateEventID
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(entryKey(entry.SequenceNumber), data); err != nil {
			return err
		}

		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, entry.SequenceNumber)
		return txn.Set(idKey, seqBytes)
	})

	if errors.Is(err, ErrDuplicateEventID) {
		return ErrDuplicateEventID
	}
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// Get retrieves an entry by sequence number.
func (s *BadgerStore) Get(ctx context.Context, seq uint64) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return &entry, nil
}

// Last returns the highest-sequence entry via one reverse iteration step.
func (s *BadgerStore) Last(ctx context.Context) (*Entry, error) {
	var entry Entry
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible entry key, then step back.
		seek := append([]byte(entryKeyPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if !it.Valid() {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if err != nil {
		return nil, &PersistenceError{Op: "last", Err: err}
	}
	if !found {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Scan returns entries in ascending sequence order starting at fromSeq.
func (s *BadgerStore) Scan(ctx context.Context, fromSeq uint64, limit int) ([]Entry, error) {
	var results []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(entryKey(fromSeq)); it.Valid(); it.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	})

	if err != nil {
		return nil, &PersistenceError{Op: "scan", Err: err}
	}
	return results, nil
}

// Query returns matching events newest-first by iterating in reverse
// sequence order until the limit is reached.
func (s *BadgerStore) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	limit := filter.EffectiveLimit()
	var results []audit.Event

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(entryKeyPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid(); it.Next() {
			if len(results) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if filter.Matches(&entry.Event) {
				results = append(results, entry.Event)
			}
		}
		return nil
	})

	if err != nil {
		return nil, &PersistenceError{Op: "query", Err: err}
	}
	return results, nil
}

// MarkArchived sets the archived flag on one entry. Hash fields are not
// touched; the flag only records that cold storage holds a copy.
func (s *BadgerStore) MarkArchived(ctx context.Context, seq uint64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := entryKey(seq)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return err
		}

		entry.Archived = true
		data, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})

	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &PersistenceError{Op: "mark archived", Err: err}
	}
	return nil
}

// Delete removes entries and their event-ID index records.
func (s *BadgerStore) Delete(ctx context.Context, seqs []uint64) (int, error) {
	removed := 0

	for _, seq := range seqs {
		err := s.db.Update(func(txn *badger.Txn) error {
			key := entryKey(seq)
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}

			if err := txn.Delete(key); err != nil {
				return err
			}
			return txn.Delete([]byte(eventIDKeyPrefix + entry.Event.ID))
		})

		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, &PersistenceError{Op: "delete", Err: err}
		}
		removed++
	}
	return removed, nil
}

// Close closes the underlying BadgerDB handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Maintain runs Badger value-log garbage collection at the given
// interval until the context is canceled. Retention deletes reclaim
// no disk space without it. GC returning ErrNoRewrite just means
// there was nothing to collect.
func (s *BadgerStore) Maintain(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// OpenBadger opens (or creates) a BadgerDB at dir with logging routed away
// from Badger's default logger.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return badger.Open(opts)
}
