// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package retention

import (
	"context"
	"time"

	"github.com/tomtom215/auditchain/internal/ledger"
	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// Config controls the retention manager.
type Config struct {
	Policy   Policy
	Interval time.Duration // cycle period, default 1h
	MaxScan  int           // max entries examined per cycle, default 10000
}

// DefaultConfig returns hourly cycles with the default policy.
func DefaultConfig() Config {
	return Config{
		Policy:   DefaultPolicy(),
		Interval: time.Hour,
		MaxScan:  10000,
	}
}

// CycleResult summarizes a single retention pass.
type CycleResult struct {
	Scanned         int
	Archived        int
	Deleted         int
	ArchiveFailures int
}

// Manager runs retention cycles against a ledger store. Archival is
// best effort: entries that fail to archive stay in the ledger and are
// retried on the next cycle. Deletion only removes entries that have
// been archived, unless archival is disabled entirely.
type Manager struct {
	cfg   Config
	store ledger.Store
	sink  Sink
	now   func() time.Time
}

// NewManager wires the store and archive sink. A nil sink disables
// archival regardless of policy. The sink is wrapped in a circuit
// breaker so repeated write failures back off instead of blocking
// every cycle.
func NewManager(store ledger.Store, sink Sink, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxScan <= 0 {
		cfg.MaxScan = 10000
	}
	if sink == nil {
		cfg.Policy.ArchiveAfter = 0
	} else {
		sink = newBreakerSink(sink)
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		sink:  sink,
		now:   time.Now,
	}
}

// RunWithContext runs retention cycles until the context is canceled.
// It satisfies the supervisor service contract.
func (m *Manager) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RunCycle(ctx); err != nil {
				logging.Error().Err(err).Msg("Retention cycle failed")
			}
		}
	}
}

// RunCycle performs one retention pass and returns its summary.
func (m *Manager) RunCycle(ctx context.Context) (CycleResult, error) {
	start := m.now()
	var res CycleResult

	toArchive, toDelete, scanned, err := m.collect(ctx, start)
	if err != nil {
		metrics.RetentionFailures.WithLabelValues("scan").Inc()
		return res, err
	}
	res.Scanned = scanned

	res.Archived, res.ArchiveFailures = m.archive(ctx, toArchive)
	res.Deleted = m.delete(ctx, toDelete)

	metrics.RetentionCycleDuration.Observe(m.now().Sub(start).Seconds())
	logging.Info().
		Int("archived", res.Archived).
		Int("deleted", res.Deleted).
		Int("archive_failures", res.ArchiveFailures).
		Msg("Retention cycle complete")
	return res, nil
}

// collect scans from the oldest entry forward in bounded batches.
// Entries are appended in timestamp order, so the scan stops at the
// first entry younger than every threshold.
func (m *Manager) collect(ctx context.Context, now time.Time) (toArchive, toDelete []ledger.Entry, scanned int, err error) {
	minAge := m.minThreshold()
	if minAge <= 0 {
		return nil, nil, 0, nil
	}

	const batchSize = 512
	fromSeq := uint64(1)
	for scanned < m.cfg.MaxScan {
		batch, err := m.store.Scan(ctx, fromSeq, batchSize)
		if err != nil {
			return nil, nil, scanned, err
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			e := batch[i]
			scanned++
			age := now.Sub(e.Event.Timestamp)
			if age < minAge {
				return toArchive, toDelete, scanned, nil
			}
			switch {
			case m.cfg.Policy.shouldDelete(&e.Event, age) && m.deletable(&e):
				toDelete = append(toDelete, e)
			case !e.Archived && m.cfg.Policy.shouldArchive(age):
				toArchive = append(toArchive, e)
			}
		}
		fromSeq = batch[len(batch)-1].SequenceNumber + 1
	}
	return toArchive, toDelete, scanned, nil
}

// deletable requires archival before deletion when archival is enabled.
// Entries past retention but not yet archived are archived this cycle
// and removed on a later one.
func (m *Manager) deletable(e *ledger.Entry) bool {
	return e.Archived || m.cfg.Policy.ArchiveAfter <= 0
}

func (m *Manager) archive(ctx context.Context, entries []ledger.Entry) (archived, failures int) {
	if len(entries) == 0 || m.sink == nil {
		return 0, 0
	}
	written, err := m.sink.Write(entries)
	if err != nil {
		metrics.RetentionFailures.WithLabelValues("archive").Inc()
		logging.Error().Err(err).
			Int("entries", len(entries)).
			Int("written", len(written)).
			Msg("Archive write incomplete")
	}
	ok := make(map[uint64]struct{}, len(written))
	for _, seq := range written {
		ok[seq] = struct{}{}
	}
	for _, e := range entries {
		if _, hit := ok[e.SequenceNumber]; !hit {
			failures++
			continue
		}
		if err := m.store.MarkArchived(ctx, e.SequenceNumber); err != nil {
			metrics.RetentionFailures.WithLabelValues("mark").Inc()
			logging.Error().Err(err).Uint64("sequence", e.SequenceNumber).Msg("Archive mark failed")
			failures++
			continue
		}
		archived++
	}
	metrics.RetentionArchived.Add(float64(archived))
	return archived, failures
}

func (m *Manager) delete(ctx context.Context, entries []ledger.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	seqs := make([]uint64, 0, len(entries))
	for _, e := range entries {
		seqs = append(seqs, e.SequenceNumber)
	}
	removed, err := m.store.Delete(ctx, seqs)
	if err != nil {
		metrics.RetentionFailures.WithLabelValues("delete").Inc()
		logging.Error().Err(err).Int("entries", len(seqs)).Msg("Retention delete failed")
		return removed
	}
	metrics.RetentionDeleted.Add(float64(removed))
	logging.Info().
		Uint64("first_sequence", seqs[0]).
		Uint64("last_sequence", seqs[len(seqs)-1]).
		Int("entries", removed).
		Msg("Expired ledger entries deleted")
	return removed
}

// minThreshold is the youngest age at which any rule can act.
func (m *Manager) minThreshold() time.Duration {
	p := m.cfg.Policy
	min := p.RetainFor
	if p.ArchiveAfter > 0 && (min <= 0 || p.ArchiveAfter < min) {
		min = p.ArchiveAfter
	}
	return min
}
