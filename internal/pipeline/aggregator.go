// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/logging"
)

// Searcher is the read surface of the ledger needed by the aggregator.
// Satisfied by *ledger.Ledger.
type Searcher interface {
	Search(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Stats is one interval rollup of finalized pipeline runs.
//
// Percentiles use the nearest-rank method: the p-th percentile is the value
// at (one-based) rank ceil(p/100 * N) of the sorted sample.
type Stats struct {
	Count             int                      `json:"count"`
	SuccessCount      int                      `json:"success_count"`
	FailureCount      int                      `json:"failure_count"`
	AvgTotalTime      time.Duration            `json:"avg_total_time"`
	P95               time.Duration            `json:"p95"`
	P99               time.Duration            `json:"p99"`
	SLAViolations     int                      `json:"sla_violations"`
	SLAComplianceRate float64                  `json:"sla_compliance_rate"`
	PerStageAvg       map[string]time.Duration `json:"per_stage_avg"`

	// SkippedRecords counts summary events in range that could not be
	// parsed. Partial results are explicit, never silent.
	SkippedRecords int `json:"skipped_records,omitempty"`

	// Truncated is set when the range held more summaries than one
	// query can return and older runs were left out of the rollup.
	Truncated bool `json:"truncated,omitempty"`
}

// StageProfile summarizes one stage across runs in an interval.
type StageProfile struct {
	Avg time.Duration `json:"avg"`
	Max time.Duration `json:"max"`
}

// BottleneckFinding flags a stage whose average exceeded its threshold.
type BottleneckFinding struct {
	Stage     string        `json:"stage"`
	Avg       time.Duration `json:"avg"`
	Threshold time.Duration `json:"threshold"`
}

// CriticalPathReport is the per-stage breakdown for an interval.
type CriticalPathReport struct {
	Stages         map[string]StageProfile `json:"stages"`
	PathFrequency  map[string]int          `json:"path_frequency"`
	Bottlenecks    []BottleneckFinding     `json:"bottlenecks,omitempty"`
	SkippedRecords int                     `json:"skipped_records,omitempty"`
	Truncated      bool                    `json:"truncated,omitempty"`
}

// Aggregator computes interval statistics from pipeline.summary events.
type Aggregator struct {
	searcher Searcher

	// StageThresholds flags a stage as a bottleneck when its interval
	// average exceeds the configured duration.
	StageThresholds map[string]time.Duration
}

// NewAggregator creates an aggregator reading from the given searcher.
func NewAggregator(searcher Searcher, stageThresholds map[string]time.Duration) *Aggregator {
	return &Aggregator{searcher: searcher, StageThresholds: stageThresholds}
}

// runSample is one parsed summary event.
type runSample struct {
	total       time.Duration
	outcome     audit.Outcome
	exceededSLA bool
	critical    string
	stages      map[string]time.Duration
}

// Stats computes the rollup for [start, end). A zero-sample range returns a
// neutral result: zero counts and 100% SLA compliance.
func (a *Aggregator) Stats(ctx context.Context, start, end time.Time) (*Stats, error) {
	samples, skipped, truncated, err := a.collect(ctx, start, end)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		SLAComplianceRate: 100.0,
		PerStageAvg:       make(map[string]time.Duration),
		SkippedRecords:    skipped,
		Truncated:         truncated,
	}
	if len(samples) == 0 {
		return stats, nil
	}

	totals := make([]time.Duration, 0, len(samples))
	var sum time.Duration
	stageSums := make(map[string]time.Duration)
	stageCounts := make(map[string]int)

	for _, s := range samples {
		totals = append(totals, s.total)
		sum += s.total

		switch s.outcome {
		case audit.OutcomeSuccess:
			stats.SuccessCount++
		case audit.OutcomeFailure:
			stats.FailureCount++
		}
		if s.exceededSLA {
			stats.SLAViolations++
		}
		for name, dur := range s.stages {
			stageSums[name] += dur
			stageCounts[name]++
		}
	}

	stats.Count = len(samples)
	stats.AvgTotalTime = sum / time.Duration(len(samples))

	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	stats.P95 = nearestRank(totals, 95)
	stats.P99 = nearestRank(totals, 99)

	stats.SLAComplianceRate = 100.0 * float64(stats.Count-stats.SLAViolations) / float64(stats.Count)

	for name, total := range stageSums {
		stats.PerStageAvg[name] = total / time.Duration(stageCounts[name])
	}
	return stats, nil
}

// CriticalPathAnalysis reports per-stage profiles, critical path frequency
// and bottleneck findings for [start, end).
func (a *Aggregator) CriticalPathAnalysis(ctx context.Context, start, end time.Time) (*CriticalPathReport, error) {
	samples, skipped, truncated, err := a.collect(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &CriticalPathReport{
		Stages:         make(map[string]StageProfile),
		PathFrequency:  make(map[string]int),
		SkippedRecords: skipped,
		Truncated:      truncated,
	}

	stageSums := make(map[string]time.Duration)
	stageCounts := make(map[string]int)
	stageMaxes := make(map[string]time.Duration)

	for _, s := range samples {
		if s.critical != "" {
			report.PathFrequency[s.critical]++
		}
		for name, dur := range s.stages {
			stageSums[name] += dur
			stageCounts[name]++
			if dur > stageMaxes[name] {
				stageMaxes[name] = dur
			}
		}
	}

	for name, total := range stageSums {
		avg := total / time.Duration(stageCounts[name])
		report.Stages[name] = StageProfile{Avg: avg, Max: stageMaxes[name]}

		if threshold, ok := a.StageThresholds[name]; ok && avg > threshold {
			report.Bottlenecks = append(report.Bottlenecks, BottleneckFinding{
				Stage:     name,
				Avg:       avg,
				Threshold: threshold,
			})
		}
	}

	sort.Slice(report.Bottlenecks, func(i, j int) bool {
		return report.Bottlenecks[i].Stage < report.Bottlenecks[j].Stage
	})
	return report, nil
}

// collect searches summary events in range and parses them into samples.
// Malformed records are skipped and counted, never aborting the batch.
// truncated reports a range with more summaries than one query returns,
// so callers can mark the rollup as partial.
func (a *Aggregator) collect(ctx context.Context, start, end time.Time) (samples []runSample, skipped int, truncated bool, err error) {
	events, err := a.searcher.Search(ctx, audit.QueryFilter{
		Types:     []audit.EventType{audit.EventTypePipelineSummary},
		StartTime: &start,
		EndTime:   &end,
		Limit:     audit.MaxQueryLimit,
	})
	if err != nil {
		return nil, 0, false, err
	}
	if truncated = len(events) == audit.MaxQueryLimit; truncated {
		logging.Warn().
			Time("start", start).
			Time("end", end).
			Msg("Rollup range exceeds the query limit, older runs omitted")
	}

	samples = make([]runSample, 0, len(events))
	for i := range events {
		sample, ok := parseSummary(&events[i])
		if !ok {
			skipped++
			logging.Warn().
				Str("event_id", events[i].ID).
				Msg("skipping malformed pipeline summary event")
			continue
		}
		samples = append(samples, sample)
	}
	return samples, skipped, truncated, nil
}

// parseSummary extracts the machine-readable detail fields of one summary
// event written by Recorder.summaryEvent.
func parseSummary(event *audit.Event) (runSample, bool) {
	totalStr, ok := event.Details[detailTotalMs]
	if !ok {
		return runSample{}, false
	}
	totalMs, err := strconv.ParseFloat(totalStr, 64)
	if err != nil || totalMs < 0 {
		return runSample{}, false
	}

	sample := runSample{
		total:    time.Duration(totalMs * float64(time.Millisecond)),
		outcome:  event.Outcome,
		critical: event.Details[detailCriticalPath],
		stages:   make(map[string]time.Duration),
	}
	sample.exceededSLA, _ = strconv.ParseBool(event.Details[detailExceededSLA])

	for key, value := range event.Details {
		if !strings.HasPrefix(key, stageDetailPrefix) {
			continue
		}
		ms, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		sample.stages[strings.TrimPrefix(key, stageDetailPrefix)] = time.Duration(ms * float64(time.Millisecond))
	}
	return sample, true
}

// nearestRank returns the p-th percentile of a sorted sample using the
// nearest-rank method.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
