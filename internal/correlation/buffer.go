// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"sync"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

// windowKey groups buffered events by who acted in which session.
type windowKey struct {
	actorID   string
	sessionID string
}

// buffer is the time-bounded event window per (actor, session) key. Events
// older than the largest configured rule window are expired on each pass.
type buffer struct {
	mu      sync.Mutex
	windows map[windowKey][]audit.Event
	count   int
}

func newBuffer() *buffer {
	return &buffer{windows: make(map[windowKey][]audit.Event)}
}

// add buffers one event under its window key.
func (b *buffer) add(event audit.Event) {
	key := windowKey{actorID: event.Actor.ID, sessionID: event.Actor.SessionID}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[key] = append(b.windows[key], event)
	b.count++
}

// expire drops events older than maxAge and removes empty windows.
func (b *buffer) expire(now time.Time, maxAge time.Duration) {
	cutoff := now.Add(-maxAge)

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, events := range b.windows {
		kept := events[:0]
		for _, event := range events {
			if event.Timestamp.After(cutoff) {
				kept = append(kept, event)
			}
		}
		b.count -= len(events) - len(kept)
		if len(kept) == 0 {
			delete(b.windows, key)
			continue
		}
		b.windows[key] = kept
	}
}

// keys returns a snapshot of the current window keys.
func (b *buffer) keys() []windowKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]windowKey, 0, len(b.windows))
	for key := range b.windows {
		keys = append(keys, key)
	}
	return keys
}

// snapshot returns a copy of one window's events. Each window is owned by
// one matching pass at a time; copies keep passes independent of concurrent
// ingestion.
func (b *buffer) snapshot(key windowKey) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.windows[key]
	if len(events) == 0 {
		return nil
	}
	return append([]audit.Event(nil), events...)
}

// size reports how many events are buffered across all windows.
func (b *buffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
