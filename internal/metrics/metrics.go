// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package metrics exposes Prometheus instrumentation for the ledger, the
// correlation engine, the pipeline recorder and the retention manager.
// Collectors are registered through promauto at package load; consumers
// scrape them via the ops HTTP endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger metrics
	LedgerAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_ledger_appends_total",
			Help: "Total ledger append attempts by result",
		},
		[]string{"result"}, // "ok", "validation_error", "persistence_error"
	)

	LedgerAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditchain_ledger_append_duration_seconds",
			Help:    "Duration of ledger appends in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LedgerSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditchain_ledger_sequence",
			Help: "Highest assigned ledger sequence number",
		},
	)

	LedgerSearches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditchain_ledger_searches_total",
			Help: "Total ledger search operations",
		},
	)

	// Integrity verification metrics
	IntegrityVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_integrity_verifications_total",
			Help: "Total integrity verification runs by status",
		},
		[]string{"status"}, // "valid", "compromised"
	)

	IntegrityAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditchain_integrity_anomalies_total",
			Help: "Total integrity anomalies reported across all verification runs",
		},
	)

	// Correlation engine metrics
	CorrelationEventsBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditchain_correlation_events_buffered",
			Help: "Events currently held in correlation window buffers",
		},
	)

	CorrelationsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_correlations_matched_total",
			Help: "Total correlations produced by rule",
		},
		[]string{"rule"},
	)

	CorrelationAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_correlation_anomalies_total",
			Help: "Total anomalous correlations by rule",
		},
		[]string{"rule"},
	)

	CorrelationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditchain_correlation_pass_duration_seconds",
			Help:    "Duration of correlation matching passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Pipeline metrics
	PipelineRunsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_pipeline_runs_total",
			Help: "Total finalized pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineSLAViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditchain_pipeline_sla_violations_total",
			Help: "Total pipeline runs exceeding the SLA target",
		},
	)

	PipelineSLACompliance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditchain_pipeline_sla_compliance_rate",
			Help: "SLA compliance percentage over the last monitoring interval",
		},
	)

	PipelineTotalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditchain_pipeline_total_duration_seconds",
			Help:    "End-to-end pipeline run durations in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1, 2.5},
		},
	)

	// Retention metrics
	RetentionArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditchain_retention_archived_total",
			Help: "Total ledger entries archived to cold storage",
		},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditchain_retention_deleted_total",
			Help: "Total ledger entries deleted past retention",
		},
	)

	RetentionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditchain_retention_failures_total",
			Help: "Total retention cycle failures by phase",
		},
		[]string{"phase"}, // "archive", "delete"
	)

	RetentionCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditchain_retention_cycle_duration_seconds",
			Help:    "Duration of retention cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)

// ObserveAppend records one append attempt.
func ObserveAppend(result string, duration time.Duration) {
	LedgerAppends.WithLabelValues(result).Inc()
	if result == "ok" {
		LedgerAppendDuration.Observe(duration.Seconds())
	}
}
