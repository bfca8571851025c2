// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// Monitor periodically rolls up finalized runs over the trailing interval
// and reports SLA compliance and bottlenecks. Breaches are loud; everything
// else is routine operational logging.
type Monitor struct {
	agg      *Aggregator
	interval time.Duration

	now func() time.Time
}

// NewMonitor creates a monitor over the given aggregator. A non-positive
// interval defaults to one minute.
func NewMonitor(agg *Aggregator, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{agg: agg, interval: interval, now: time.Now}
}

// RunWithContext reports once per interval until the context is canceled.
func (m *Monitor) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.report(ctx)
		}
	}
}

func (m *Monitor) report(ctx context.Context) {
	end := m.now()
	start := end.Add(-m.interval)

	stats, err := m.agg.Stats(ctx, start, end)
	if err != nil {
		logging.Error().Err(err).Msg("SLA rollup failed")
		return
	}
	if stats.Count == 0 {
		return
	}

	metrics.PipelineSLACompliance.Set(stats.SLAComplianceRate)

	level := zerolog.InfoLevel
	if stats.SLAViolations > 0 {
		level = zerolog.WarnLevel
	}
	logger := logging.Logger()
	logger.WithLevel(level).
		Int("runs", stats.Count).
		Int("sla_violations", stats.SLAViolations).
		Float64("sla_compliance", stats.SLAComplianceRate).
		Dur("avg_total", stats.AvgTotalTime).
		Dur("p95", stats.P95).
		Dur("p99", stats.P99).
		Int("skipped", stats.SkippedRecords).
		Msg("Pipeline SLA rollup")

	paths, err := m.agg.CriticalPathAnalysis(ctx, start, end)
	if err != nil {
		logging.Error().Err(err).Msg("Critical path analysis failed")
		return
	}
	for _, b := range paths.Bottlenecks {
		logging.Warn().
			Str("stage", b.Stage).
			Dur("avg", b.Avg).
			Dur("threshold", b.Threshold).
			Msg("Pipeline stage over its latency budget")
	}
}
