// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
)

// sliceSearcher serves canned events filtered in memory.
type sliceSearcher struct {
	events []audit.Event
}

func (s *sliceSearcher) Search(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	var out []audit.Event
	for i := range s.events {
		if filter.Matches(&s.events[i]) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func summaryEventAt(ts time.Time, totalMs float64, outcome audit.Outcome, exceeded bool, critical string, stages map[string]float64) audit.Event {
	details := map[string]string{
		detailTotalMs:      strconv.FormatFloat(totalMs, 'f', 3, 64),
		detailCriticalPath: critical,
		detailExceededSLA:  strconv.FormatBool(exceeded),
		detailRiskScore:    "0.0000",
	}
	for name, ms := range stages {
		details[stageDetailPrefix+name] = strconv.FormatFloat(ms, 'f', 3, 64)
	}
	return audit.Event{
		ID:        fmt.Sprintf("sum-%d-%f", ts.UnixNano(), totalMs),
		Timestamp: ts,
		Type:      audit.EventTypePipelineSummary,
		Severity:  audit.SeverityInfo,
		Actor:     audit.Actor{ID: "user-1"},
		Action:    "authenticate",
		Outcome:   outcome,
		Details:   details,
	}
}

func TestStatsRollup(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	searcher := &sliceSearcher{}

	// 100 runs with totals 1..100ms, the top 5 exceeding the SLA.
	for i := 1; i <= 100; i++ {
		outcome := audit.OutcomeSuccess
		if i%10 == 0 {
			outcome = audit.OutcomeFailure
		}
		searcher.events = append(searcher.events, summaryEventAt(
			base.Add(time.Duration(i)*time.Second),
			float64(i),
			outcome,
			i > 95,
			"credential",
			map[string]float64{"credential": float64(i) / 2, "policy": float64(i) / 4},
		))
	}

	agg := NewAggregator(searcher, nil)
	stats, err := agg.Stats(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.Count != 100 {
		t.Fatalf("count = %d, want 100", stats.Count)
	}
	if stats.SuccessCount != 90 || stats.FailureCount != 10 {
		t.Errorf("success/failure = %d/%d, want 90/10", stats.SuccessCount, stats.FailureCount)
	}
	if stats.P95 != 95*time.Millisecond {
		t.Errorf("p95 = %v, want 95ms (nearest rank)", stats.P95)
	}
	if stats.P99 != 99*time.Millisecond {
		t.Errorf("p99 = %v, want 99ms (nearest rank)", stats.P99)
	}
	if stats.AvgTotalTime != 50500*time.Microsecond {
		t.Errorf("avg = %v, want 50.5ms", stats.AvgTotalTime)
	}
	if stats.SLAViolations != 5 {
		t.Errorf("violations = %d, want 5", stats.SLAViolations)
	}
	if stats.SLAComplianceRate != 95.0 {
		t.Errorf("compliance = %f, want 95.0", stats.SLAComplianceRate)
	}
	if stats.SkippedRecords != 0 {
		t.Errorf("skipped = %d, want 0", stats.SkippedRecords)
	}
}

func TestStatsZeroSampleNeutrality(t *testing.T) {
	agg := NewAggregator(&sliceSearcher{}, nil)
	stats, err := agg.Stats(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("count = %d, want 0", stats.Count)
	}
	if stats.SLAComplianceRate != 100.0 {
		t.Errorf("zero-sample compliance = %f, want 100.0", stats.SLAComplianceRate)
	}
	if stats.P95 != 0 || stats.AvgTotalTime != 0 {
		t.Error("zero-sample stats carry non-zero durations")
	}
}

func TestStatsSkipsMalformedRecords(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	searcher := &sliceSearcher{}

	searcher.events = append(searcher.events,
		summaryEventAt(base.Add(time.Second), 50, audit.OutcomeSuccess, false, "policy", nil))

	// A summary event with no parsable total.
	broken := summaryEventAt(base.Add(2*time.Second), 60, audit.OutcomeSuccess, false, "policy", nil)
	delete(broken.Details, detailTotalMs)
	searcher.events = append(searcher.events, broken)

	garbage := summaryEventAt(base.Add(3*time.Second), 70, audit.OutcomeSuccess, false, "policy", nil)
	garbage.Details[detailTotalMs] = "not-a-number"
	searcher.events = append(searcher.events, garbage)

	agg := NewAggregator(searcher, nil)
	stats, err := agg.Stats(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 {
		t.Errorf("count = %d, want 1 (good record only)", stats.Count)
	}
	if stats.SkippedRecords != 2 {
		t.Errorf("skipped = %d, want 2", stats.SkippedRecords)
	}
}

func TestCriticalPathAnalysis(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	searcher := &sliceSearcher{}

	for i := 0; i < 8; i++ {
		searcher.events = append(searcher.events, summaryEventAt(
			base.Add(time.Duration(i)*time.Second),
			100,
			audit.OutcomeSuccess,
			false,
			"credential",
			map[string]float64{"credential": 60, "policy": 20},
		))
	}
	for i := 8; i < 10; i++ {
		searcher.events = append(searcher.events, summaryEventAt(
			base.Add(time.Duration(i)*time.Second),
			100,
			audit.OutcomeSuccess,
			false,
			"policy",
			map[string]float64{"credential": 10, "policy": 80},
		))
	}

	agg := NewAggregator(searcher, map[string]time.Duration{
		"credential": 40 * time.Millisecond,
		"policy":     60 * time.Millisecond,
	})
	report, err := agg.CriticalPathAnalysis(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}

	if report.PathFrequency["credential"] != 8 || report.PathFrequency["policy"] != 2 {
		t.Errorf("path frequency = %v", report.PathFrequency)
	}

	cred := report.Stages["credential"]
	if cred.Avg != 50*time.Millisecond {
		t.Errorf("credential avg = %v, want 50ms", cred.Avg)
	}
	if cred.Max != 60*time.Millisecond {
		t.Errorf("credential max = %v, want 60ms", cred.Max)
	}

	// credential avg 50ms > 40ms threshold; policy avg 32ms < 60ms.
	if len(report.Bottlenecks) != 1 || report.Bottlenecks[0].Stage != "credential" {
		t.Errorf("bottlenecks = %+v, want credential only", report.Bottlenecks)
	}
}

func TestNearestRank(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40, 50}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{50, 30},
		{95, 50},
		{99, 50},
		{100, 50},
		{1, 10},
	}
	for _, tt := range tests {
		if got := nearestRank(sorted, tt.p); got != tt.want {
			t.Errorf("nearestRank(%.0f) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestStatsMarksTruncatedRange(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	summary := summaryEventAt(base.Add(time.Minute), 100, audit.OutcomeSuccess, false, "credential",
		map[string]float64{"credential": 60})

	full := &sliceSearcher{events: make([]audit.Event, audit.MaxQueryLimit)}
	for i := range full.events {
		full.events[i] = summary
	}

	agg := NewAggregator(full, nil)
	stats, err := agg.Stats(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if !stats.Truncated {
		t.Error("Truncated = false for a range at the query limit, want true")
	}
	if stats.Count != audit.MaxQueryLimit {
		t.Errorf("Count = %d, want %d", stats.Count, audit.MaxQueryLimit)
	}

	report, err := agg.CriticalPathAnalysis(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CriticalPathAnalysis() failed: %v", err)
	}
	if !report.Truncated {
		t.Error("report Truncated = false for a range at the query limit, want true")
	}

	// One summary short of the limit is a complete rollup.
	partial := &sliceSearcher{events: full.events[:audit.MaxQueryLimit-1]}
	stats, err = NewAggregator(partial, nil).Stats(context.Background(), base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Truncated {
		t.Error("Truncated = true below the query limit, want false")
	}
}
