// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/ledger"
)

// captureAppender records appended events in order.
type captureAppender struct {
	events []*audit.Event
	seq    uint64
}

func (c *captureAppender) Append(_ context.Context, event *audit.Event) (*ledger.Entry, error) {
	c.seq++
	c.events = append(c.events, event.Clone())
	return &ledger.Entry{SequenceNumber: c.seq, Event: *event}, nil
}

func (c *captureAppender) byType(t audit.EventType) []*audit.Event {
	var out []*audit.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func recordStages(t *testing.T, rec *Recorder, requestID string, durations map[string]time.Duration) {
	t.Helper()
	for name, dur := range durations {
		err := rec.RecordStage(StageInput{
			RequestID: requestID,
			StageName: name,
			ActorID:   "user-1",
			SessionID: "sess-1",
			Action:    "authenticate",
			Outcome:   audit.OutcomeSuccess,
			Duration:  dur,
		})
		if err != nil {
			t.Fatalf("record stage %s: %v", name, err)
		}
	}
}

func TestFinalizeComputesRunMetrics(t *testing.T) {
	appender := &captureAppender{}
	rec := NewRecorder(appender, Config{
		SLATarget:      150 * time.Millisecond,
		ExpectedStages: []string{"validation", "credential", "policy"},
	})

	recordStages(t, rec, "req-1", map[string]time.Duration{
		"validation": 40 * time.Millisecond,
		"credential": 60 * time.Millisecond,
		"policy":     20 * time.Millisecond,
	})

	run, err := rec.Finalize(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if run.TotalDuration != 120*time.Millisecond {
		t.Errorf("total = %v, want 120ms (sum of stages)", run.TotalDuration)
	}
	if run.CriticalPath != "credential" {
		t.Errorf("critical path = %s, want credential", run.CriticalPath)
	}
	if run.ExceededSLA {
		t.Error("120ms run flagged as exceeding a 150ms SLA")
	}
	if run.FinalOutcome != audit.OutcomeSuccess {
		t.Errorf("final outcome = %s, want success", run.FinalOutcome)
	}
	if run.RiskScore != 0 {
		t.Errorf("risk score = %f for a clean run, want 0", run.RiskScore)
	}
	if rec.InflightCount() != 0 {
		t.Error("finalized run still in flight")
	}

	// One event per stage plus the summary.
	if len(appender.events) != 4 {
		t.Fatalf("appended %d events, want 4", len(appender.events))
	}
	summaries := appender.byType(audit.EventTypePipelineSummary)
	if len(summaries) != 1 {
		t.Fatalf("appended %d summaries, want 1", len(summaries))
	}
	summary := summaries[0]
	if summary.Details[detailTotalMs] != "120.000" {
		t.Errorf("summary total_ms = %q, want 120.000", summary.Details[detailTotalMs])
	}
	if summary.Details[detailCriticalPath] != "credential" {
		t.Errorf("summary critical_path = %q", summary.Details[detailCriticalPath])
	}
	if summary.Details[detailExceededSLA] != "false" {
		t.Errorf("summary exceeded_sla = %q", summary.Details[detailExceededSLA])
	}
	if summary.Details[stageDetailPrefix+"credential"] != "60.000" {
		t.Errorf("summary stage_ms.credential = %q", summary.Details[stageDetailPrefix+"credential"])
	}
}

func TestFinalizeExceededSLA(t *testing.T) {
	appender := &captureAppender{}
	rec := NewRecorder(appender, Config{
		SLATarget:      150 * time.Millisecond,
		ExpectedStages: []string{"validation", "credential"},
	})

	recordStages(t, rec, "req-1", map[string]time.Duration{
		"validation": 80 * time.Millisecond,
		"credential": 90 * time.Millisecond,
	})

	run, err := rec.Finalize(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !run.ExceededSLA {
		t.Error("170ms run not flagged against 150ms SLA")
	}

	summary := appender.byType(audit.EventTypePipelineSummary)[0]
	if summary.Severity != audit.SeverityWarning {
		t.Errorf("SLA-violating summary severity = %s, want warning", summary.Severity)
	}
}

func TestFinalizeMissingStage(t *testing.T) {
	appender := &captureAppender{}
	rec := NewRecorder(appender, Config{
		ExpectedStages: []string{"validation", "credential", "policy", "permission"},
	})

	recordStages(t, rec, "req-1", map[string]time.Duration{
		"validation": 10 * time.Millisecond,
		"credential": 20 * time.Millisecond,
	})

	run, err := rec.Finalize(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if run.FinalOutcome != audit.OutcomePartial {
		t.Errorf("final outcome = %s with missing stages, want partial", run.FinalOutcome)
	}
	if run.StageOutcomes["policy"] != audit.OutcomeUnknown {
		t.Errorf("missing stage outcome = %s, want unknown", run.StageOutcomes["policy"])
	}

	flags := map[string]bool{}
	for _, f := range run.AnomalyFlags {
		flags[f] = true
	}
	if !flags["missing_stage:policy"] || !flags["missing_stage:permission"] {
		t.Errorf("anomaly flags = %v, want missing_stage flags for policy and permission", run.AnomalyFlags)
	}
}

func TestFinalizeFailureDominates(t *testing.T) {
	appender := &captureAppender{}
	rec := NewRecorder(appender, Config{ExpectedStages: []string{"validation", "credential"}})

	if err := rec.RecordStage(StageInput{
		RequestID: "req-1",
		StageName: "validation",
		ActorID:   "user-1",
		Action:    "authenticate",
		Outcome:   audit.OutcomeSuccess,
		Duration:  10 * time.Millisecond,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.RecordStage(StageInput{
		RequestID:      "req-1",
		StageName:      "credential",
		ActorID:        "user-1",
		Action:         "authenticate",
		Outcome:        audit.OutcomeFailure,
		Duration:       15 * time.Millisecond,
		RiskIndicators: []string{"brute_force"},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	run, err := rec.Finalize(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if run.FinalOutcome != audit.OutcomeFailure {
		t.Errorf("final outcome = %s, want failure", run.FinalOutcome)
	}
	if run.RiskScore <= 0 || run.RiskScore > 1 {
		t.Errorf("risk score = %f, want in (0,1]", run.RiskScore)
	}
}

func TestSlowStageDetection(t *testing.T) {
	appender := &captureAppender{}
	rec := NewRecorder(appender, Config{
		ExpectedStages:  []string{"credential"},
		SlowStageFactor: 2.0,
	})

	// Build up history: the rolling average needs several samples before
	// slow detection activates.
	for i := 0; i < 5; i++ {
		reqID := fmt.Sprintf("warm-%d", i)
		recordStages(t, rec, reqID, map[string]time.Duration{"credential": 10 * time.Millisecond})
		if _, err := rec.Finalize(context.Background(), reqID); err != nil {
			t.Fatalf("finalize warmup: %v", err)
		}
	}

	recordStages(t, rec, "req-slow", map[string]time.Duration{"credential": 50 * time.Millisecond})
	run, err := rec.Finalize(context.Background(), "req-slow")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	found := false
	for _, f := range run.AnomalyFlags {
		if f == "slow_stage:credential" {
			found = true
		}
	}
	if !found {
		t.Errorf("50ms stage not flagged slow against ~10ms average, flags: %v", run.AnomalyFlags)
	}
}

func TestFinalizeUnknownRequest(t *testing.T) {
	rec := NewRecorder(&captureAppender{}, Config{})
	if _, err := rec.Finalize(context.Background(), "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("finalize error = %v, want ErrNotFound", err)
	}
}

func TestRecordStageRequiresIdentity(t *testing.T) {
	rec := NewRecorder(&captureAppender{}, Config{})
	if err := rec.RecordStage(StageInput{StageName: "validation"}); err == nil {
		t.Error("missing request ID accepted")
	}
	if err := rec.RecordStage(StageInput{RequestID: "req-1"}); err == nil {
		t.Error("missing stage name accepted")
	}
}
