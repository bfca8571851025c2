// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package retention

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/auditchain/internal/ledger"
)

// Sink receives entries leaving the hot ledger. Write is best effort
// per entry: it reports the sequence numbers durably written and a
// non-nil error when any entry could not be archived, so one failing
// entry never blocks the rest of the batch. Implementations must
// tolerate the same entry being written more than once; a failed cycle
// retries un-marked entries later.
type Sink interface {
	Write(entries []ledger.Entry) (written []uint64, err error)
}

// FileSink appends entries to gzip-compressed JSONL files under a base
// directory, one file per day and event type:
//
//	<dir>/<YYYY-MM-DD>/<event_type>.jsonl.gz
//
// Appended gzip members concatenate into a single valid stream, so each
// batch is an independent member and a crashed write never corrupts
// earlier ones.
type FileSink struct {
	dir string
}

// NewFileSink creates the base directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Write appends the batch, grouped by day and event type. A failing
// group does not stop the remaining groups; the returned error joins
// every failure.
func (s *FileSink) Write(entries []ledger.Entry) ([]uint64, error) {
	groups := make(map[string][]ledger.Entry)
	for _, e := range entries {
		key := archiveFileName(e.Event.Timestamp, string(e.Event.Type))
		groups[key] = append(groups[key], e)
	}

	var written []uint64
	var errs []error
	for rel, group := range groups {
		seqs, err := s.appendGroup(rel, group)
		written = append(written, seqs...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return written, errors.Join(errs...)
}

// appendGroup encodes each entry up front so a single unencodable
// entry is skipped instead of aborting the group, then writes the
// good lines as one gzip member.
func (s *FileSink) appendGroup(rel string, entries []ledger.Entry) ([]uint64, error) {
	var lines bytes.Buffer
	var seqs []uint64
	var errs []error
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode entry %d: %w", e.SequenceNumber, err))
			continue
		}
		lines.Write(data)
		lines.WriteByte('\n')
		seqs = append(seqs, e.SequenceNumber)
	}
	if len(seqs) == 0 {
		return nil, errors.Join(errs...)
	}

	path := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		errs = append(errs, fmt.Errorf("create archive period dir: %w", err))
		return nil, errors.Join(errs...)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		errs = append(errs, fmt.Errorf("open archive file %s: %w", rel, err))
		return nil, errors.Join(errs...)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(lines.Bytes()); err != nil {
		gz.Close()
		errs = append(errs, fmt.Errorf("write archive file %s: %w", rel, err))
		return nil, errors.Join(errs...)
	}
	if err := gz.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flush archive file %s: %w", rel, err))
		return nil, errors.Join(errs...)
	}
	if err := f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync archive file %s: %w", rel, err))
		return nil, errors.Join(errs...)
	}
	return seqs, errors.Join(errs...)
}

// archiveFileName builds the per-day, per-type relative path. Dots in
// event types are kept; path separators are not possible in validated
// types but are sanitized anyway.
func archiveFileName(ts time.Time, eventType string) string {
	day := ts.UTC().Format("2006-01-02")
	name := strings.ReplaceAll(eventType, string(os.PathSeparator), "_")
	return filepath.Join(day, name+".jsonl.gz")
}

// partialWriteError marks a write where some entries still landed.
// The breaker treats it as success so a single bad entry cannot trip
// the breaker and block the healthy rest of the batch.
type partialWriteError struct {
	err error
}

func (e *partialWriteError) Error() string { return e.err.Error() }
func (e *partialWriteError) Unwrap() error { return e.err }

// breakerSink wraps a Sink with a circuit breaker so a persistently
// failing archive target (full disk, unreachable mount) stops being
// hammered every cycle and recovers on its own schedule. Only total
// failures count toward tripping.
type breakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker[[]uint64]
}

func newBreakerSink(sink Sink) *breakerSink {
	settings := gobreaker.Settings{
		Name:    "retention-archive",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			var partial *partialWriteError
			return err == nil || errors.As(err, &partial)
		},
	}
	return &breakerSink{
		sink: sink,
		cb:   gobreaker.NewCircuitBreaker[[]uint64](settings),
	}
}

func (b *breakerSink) Write(entries []ledger.Entry) ([]uint64, error) {
	return b.cb.Execute(func() ([]uint64, error) {
		written, err := b.sink.Write(entries)
		if err != nil && len(written) > 0 {
			err = &partialWriteError{err: err}
		}
		return written, err
	})
}
