// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package correlation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/ledger"
	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// Reader is the ordered-scan surface of the ledger store the engine tails.
// Satisfied by any ledger.Store.
type Reader interface {
	Scan(ctx context.Context, fromSeq uint64, limit int) ([]ledger.Entry, error)
}

// Appender is the ledger write surface used for anomaly alerts.
// Satisfied by *ledger.Ledger.
type Appender interface {
	Append(ctx context.Context, event *audit.Event) (*ledger.Entry, error)
}

// Config holds engine tuning.
type Config struct {
	// PassInterval is how often a matching pass runs.
	PassInterval time.Duration `json:"pass_interval"`

	// ScanBatch bounds how many ledger entries one scan reads at a time.
	ScanBatch int `json:"scan_batch"`

	// LatePenalty multiplies the score once per secondary event arriving
	// later than the rule's max delay.
	LatePenalty float64 `json:"late_penalty"`

	// OutcomeMismatchPenalty multiplies the score when a successful primary
	// is echoed by non-successful secondaries.
	OutcomeMismatchPenalty float64 `json:"outcome_mismatch_penalty"`

	// SeverityEchoBonus multiplies the score when a high-severity primary is
	// echoed at equal or higher severity. The score is clamped to 1.0.
	SeverityEchoBonus float64 `json:"severity_echo_bonus"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PassInterval:           15 * time.Second,
		ScanBatch:              512,
		LatePenalty:            0.8,
		OutcomeMismatchPenalty: 0.7,
		SeverityEchoBonus:      1.2,
	}
}

// Engine tails the ledger, buffers events per (actor, session) and matches
// them against registered rules on periodic passes.
type Engine struct {
	cfg      Config
	reader   Reader
	appender Appender
	store    Store

	mu        sync.Mutex
	rules     map[string]Rule
	maxWindow time.Duration
	cursor    uint64
	matched   map[string]time.Time // ruleID|primaryEventID -> primary timestamp

	buf *buffer
}

// NewEngine creates a correlation engine. The cursor starts at the ledger's
// current tail so historical events are not re-correlated on restart.
func NewEngine(reader Reader, appender Appender, store Store, cfg Config, startSeq uint64) *Engine {
	if cfg.PassInterval <= 0 {
		cfg.PassInterval = 15 * time.Second
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 512
	}
	if cfg.LatePenalty <= 0 || cfg.LatePenalty > 1 {
		cfg.LatePenalty = 0.8
	}
	if cfg.OutcomeMismatchPenalty <= 0 || cfg.OutcomeMismatchPenalty > 1 {
		cfg.OutcomeMismatchPenalty = 0.7
	}
	if cfg.SeverityEchoBonus < 1 {
		cfg.SeverityEchoBonus = 1.2
	}

	return &Engine{
		cfg:      cfg,
		reader:   reader,
		appender: appender,
		store:    store,
		rules:    make(map[string]Rule),
		matched:  make(map[string]time.Time),
		cursor:   startSeq,
		buf:      newBuffer(),
	}
}

// RegisterRule validates and installs one rule.
func (e *Engine) RegisterRule(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules[rule.ID] = rule
	if rule.TimeWindow > e.maxWindow {
		e.maxWindow = rule.TimeWindow
	}

	logging.Info().
		Str("rule", rule.ID).
		Str("primary", string(rule.PrimaryType)).
		Dur("window", rule.TimeWindow).
		Msg("registered correlation rule")
	return nil
}

// RunWithContext drives periodic matching passes until the context is
// canceled. Intended to run under the supervisor tree.
func (e *Engine) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.RunPass(ctx); err != nil && ctx.Err() == nil {
				logging.Err(err).Msg("correlation pass failed")
			}
		}
	}
}

// RunPass ingests new ledger entries into the window buffers and runs one
// matching pass. Errors scoped to single records are logged and skipped;
// only scan or persistence failures abort the pass.
func (e *Engine) RunPass(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.CorrelationPassDuration.Observe(time.Since(start).Seconds())
	}()

	if err := e.ingestNew(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	maxWindow := e.maxWindow
	rules := make([]Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	e.mu.Unlock()

	if maxWindow > 0 {
		e.buf.expire(time.Now(), maxWindow)
		e.pruneMatched(time.Now(), maxWindow)
	}
	metrics.CorrelationEventsBuffered.Set(float64(e.buf.size()))

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	for _, key := range e.buf.keys() {
		events := e.buf.snapshot(key)
		if len(events) == 0 {
			continue
		}
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.Before(events[j].Timestamp)
		})

		for _, rule := range rules {
			if err := e.matchRule(ctx, key, rule, events); err != nil {
				return err
			}
		}
	}
	return nil
}

// ingestNew tails the ledger from the engine's cursor, buffering every
// non-correlation event. Malformed events are skipped and logged, never
// aborting the batch.
func (e *Engine) ingestNew(ctx context.Context) error {
	for {
		e.mu.Lock()
		from := e.cursor + 1
		e.mu.Unlock()

		entries, err := e.reader.Scan(ctx, from, e.cfg.ScanBatch)
		if err != nil {
			return fmt.Errorf("scan ledger from %d: %w", from, err)
		}
		if len(entries) == 0 {
			return nil
		}

		for i := range entries {
			event := &entries[i].Event
			switch event.Type {
			case audit.EventTypeCorrelationSummary, audit.EventTypeCorrelationAnomaly:
				// Engine output is never engine input.
			default:
				if event.Actor.ID == "" || event.Timestamp.IsZero() {
					logging.Warn().
						Str("event_id", event.ID).
						Uint64("seq", entries[i].SequenceNumber).
						Msg("skipping malformed event in correlation ingest")
				} else {
					e.buf.add(*event)
				}
			}
		}

		e.mu.Lock()
		e.cursor = entries[len(entries)-1].SequenceNumber
		e.mu.Unlock()

		if len(entries) < e.cfg.ScanBatch {
			return nil
		}
	}
}

// matchRule finds rule instances in one window's events: each unconsumed
// primary whose secondary types all appear within the rule window with
// equal match fields.
func (e *Engine) matchRule(ctx context.Context, key windowKey, rule Rule, events []audit.Event) error {
	for i := range events {
		primary := &events[i]
		if primary.Type != rule.PrimaryType {
			continue
		}

		matchKey := rule.ID + "|" + primary.ID
		e.mu.Lock()
		_, seen := e.matched[matchKey]
		e.mu.Unlock()
		if seen {
			continue
		}

		secondaries := findSecondaries(rule, primary, events)
		if secondaries == nil {
			continue
		}

		e.mu.Lock()
		e.matched[matchKey] = primary.Timestamp
		e.mu.Unlock()

		if err := e.finalize(ctx, key, rule, primary, secondaries); err != nil {
			return err
		}
	}
	return nil
}

// findSecondaries returns the rule's secondary events for a primary in
// arrival order, or nil when any secondary type is missing.
func findSecondaries(rule Rule, primary *audit.Event, events []audit.Event) []*audit.Event {
	var found []*audit.Event
	covered := make(map[audit.EventType]bool)

	for i := range events {
		candidate := &events[i]
		if candidate.ID == primary.ID {
			continue
		}
		if !isSecondaryType(rule, candidate.Type) {
			continue
		}

		delay := candidate.Timestamp.Sub(primary.Timestamp)
		if delay < 0 || delay > rule.TimeWindow {
			continue
		}
		if !fieldsMatch(rule, primary, candidate) {
			continue
		}

		found = append(found, candidate)
		covered[candidate.Type] = true
	}

	for _, t := range rule.SecondaryTypes {
		if !covered[t] {
			return nil
		}
	}
	return found
}

func isSecondaryType(rule Rule, t audit.EventType) bool {
	for _, st := range rule.SecondaryTypes {
		if st == t {
			return true
		}
	}
	return false
}

func fieldsMatch(rule Rule, a, b *audit.Event) bool {
	for _, field := range rule.MatchFields {
		if fieldValue(a, field) != fieldValue(b, field) {
			return false
		}
	}
	return true
}

// finalize scores a matched rule instance, persists the correlation and
// emits ledger events.
func (e *Engine) finalize(ctx context.Context, key windowKey, rule Rule, primary *audit.Event, secondaries []*audit.Event) error {
	score := e.score(rule, primary, secondaries)
	anomaly := score < rule.AnomalyThreshold

	last := secondaries[len(secondaries)-1]
	correlation := &Correlation{
		ID:             uuid.New().String(),
		RuleID:         rule.ID,
		PrimaryEventID: primary.ID,
		ActorID:        key.actorID,
		SessionID:      key.sessionID,
		Score:          score,
		TimeSpan:       last.Timestamp.Sub(primary.Timestamp),
		Anomaly:        anomaly,
		CreatedAt:      time.Now().UTC(),
	}
	for _, s := range secondaries {
		correlation.SecondaryEventIDs = append(correlation.SecondaryEventIDs, s.ID)
	}

	if err := e.store.Save(ctx, correlation); err != nil {
		return fmt.Errorf("save correlation %s: %w", correlation.ID, err)
	}

	metrics.CorrelationsMatched.WithLabelValues(rule.ID).Inc()
	if anomaly {
		metrics.CorrelationAnomalies.WithLabelValues(rule.ID).Inc()
	}

	if err := e.emit(ctx, rule, correlation); err != nil {
		// A full ledger append failure is logged but does not undo the
		// persisted correlation; the record is the source of truth.
		logging.Err(err).Str("correlation_id", correlation.ID).Msg("failed to emit correlation event")
	}
	return nil
}

// score computes the correlation score per the documented rule: a penalty
// per late secondary, a penalty for outcome divergence from a successful
// primary, a bonus for severity echo, clamped to 1.0. A zero MaxDelay means
// arrivals anywhere in the window are on time.
func (e *Engine) score(rule Rule, primary *audit.Event, secondaries []*audit.Event) float64 {
	score := 1.0

	maxDelay := rule.MaxDelay
	if maxDelay <= 0 {
		maxDelay = rule.TimeWindow
	}
	for _, s := range secondaries {
		if s.Timestamp.Sub(primary.Timestamp) > maxDelay {
			score *= e.cfg.LatePenalty
		}
	}

	if primary.Outcome == audit.OutcomeSuccess {
		for _, s := range secondaries {
			if s.Outcome != audit.OutcomeSuccess {
				score *= e.cfg.OutcomeMismatchPenalty
				break
			}
		}
	}

	if primary.Severity.AtLeast(audit.SeverityError) {
		echoed := true
		for _, s := range secondaries {
			if !s.Severity.AtLeast(primary.Severity) {
				echoed = false
				break
			}
		}
		if echoed {
			score *= e.cfg.SeverityEchoBonus
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// emit appends the correlation summary event and, for anomalies on alerting
// rules, a warning event.
func (e *Engine) emit(ctx context.Context, rule Rule, c *Correlation) error {
	details := map[string]string{
		"rule_id":          c.RuleID,
		"correlation_id":   c.ID,
		"primary_event_id": c.PrimaryEventID,
		"score":            strconv.FormatFloat(c.Score, 'f', 4, 64),
		"secondary_count":  strconv.Itoa(len(c.SecondaryEventIDs)),
		"time_span_ms":     strconv.FormatFloat(float64(c.TimeSpan)/float64(time.Millisecond), 'f', 3, 64),
	}

	summary := &audit.Event{
		Timestamp: c.CreatedAt,
		Type:      audit.EventTypeCorrelationSummary,
		Severity:  audit.SeverityInfo,
		Actor:     audit.Actor{ID: c.ActorID, SessionID: c.SessionID},
		Action:    "correlation.match",
		Outcome:   audit.OutcomeSuccess,
		Details:   details,
	}
	if _, err := e.appender.Append(ctx, summary); err != nil {
		return err
	}

	if !c.Anomaly || !rule.Alert {
		return nil
	}

	alert := &audit.Event{
		Timestamp:      c.CreatedAt,
		Type:           audit.EventTypeCorrelationAnomaly,
		Severity:       audit.SeverityWarning,
		Actor:          audit.Actor{ID: c.ActorID, SessionID: c.SessionID},
		Action:         "correlation.anomaly",
		Outcome:        audit.OutcomeFailure,
		RiskIndicators: []string{"correlation_anomaly:" + c.RuleID},
		Details:        details,
	}
	_, err := e.appender.Append(ctx, alert)
	return err
}

// pruneMatched drops dedup records for primaries that have left the buffer.
func (e *Engine) pruneMatched(now time.Time, maxWindow time.Duration) {
	cutoff := now.Add(-2 * maxWindow)

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, ts := range e.matched {
		if ts.Before(cutoff) {
			delete(e.matched, key)
		}
	}
}

// Cursor reports the last ledger sequence the engine has ingested.
func (e *Engine) Cursor() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}
