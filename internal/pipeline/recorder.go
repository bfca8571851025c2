// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/ledger"
	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/metrics"
)

// Appender is the write surface of the ledger needed by the recorder.
// Satisfied by *ledger.Ledger.
type Appender interface {
	Append(ctx context.Context, event *audit.Event) (*ledger.Entry, error)
}

// DefaultStages are the expected stages of one pipeline run, in order.
var DefaultStages = []string{"validation", "credential", "policy", "permission"}

// Config holds recorder configuration.
type Config struct {
	// SLATarget is the total-duration budget for one run.
	SLATarget time.Duration `json:"sla_target"`

	// ExpectedStages lists the stages every run should report.
	ExpectedStages []string `json:"expected_stages"`

	// SlowStageFactor flags a stage as anomalously slow when its duration
	// exceeds this multiple of the stage's historical average.
	SlowStageFactor float64 `json:"slow_stage_factor"`
}

// DefaultConfig returns sensible defaults: 150ms SLA, the four standard
// stages, 2x historical average as the slow-stage threshold.
func DefaultConfig() Config {
	return Config{
		SLATarget:       150 * time.Millisecond,
		ExpectedStages:  DefaultStages,
		SlowStageFactor: 2.0,
	}
}

// StageResult is one stage's reported measurement.
type StageResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Outcome  audit.Outcome `json:"outcome"`
}

// Run is the finalized result of one pipeline run. Constructed incrementally
// as stages report, finalized once, then persisted as events and discarded.
type Run struct {
	RequestID      string                   `json:"request_id"`
	ActorID        string                   `json:"actor_id"`
	SessionID      string                   `json:"session_id,omitempty"`
	Resource       string                   `json:"resource,omitempty"`
	Action         string                   `json:"action,omitempty"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	StageOutcomes  map[string]audit.Outcome `json:"stage_outcomes"`
	TotalDuration  time.Duration            `json:"total_duration"`
	CriticalPath   string                   `json:"critical_path"`
	ExceededSLA    bool                     `json:"exceeded_sla"`
	FinalOutcome   audit.Outcome            `json:"final_outcome"`
	RiskScore      float64                  `json:"risk_score"`
	AnomalyFlags   []string                 `json:"anomaly_flags,omitempty"`
}

// runState is an in-flight run being accumulated.
type runState struct {
	requestID     string
	actorID       string
	actorType     string
	sessionID     string
	resource      string
	action        string
	sourceAddress string
	riskFlags     []string
	stages        map[string]StageResult
}

// Recorder accumulates stage measurements and finalizes runs into ledger
// events. Safe for concurrent stages of different requests; stages of one
// request are expected from a single writer at a time.
type Recorder struct {
	cfg      Config
	appender Appender

	mu       sync.Mutex
	inflight map[string]*runState
	history  *stageHistory
}

// NewRecorder creates a recorder writing finalized runs to the appender.
func NewRecorder(appender Appender, cfg Config) *Recorder {
	if cfg.SLATarget <= 0 {
		cfg.SLATarget = 150 * time.Millisecond
	}
	if len(cfg.ExpectedStages) == 0 {
		cfg.ExpectedStages = DefaultStages
	}
	if cfg.SlowStageFactor <= 0 {
		cfg.SlowStageFactor = 2.0
	}
	return &Recorder{
		cfg:      cfg,
		appender: appender,
		inflight: make(map[string]*runState),
		history:  newStageHistory(),
	}
}

// StageInput carries one stage measurement into the recorder. This is the
// inbound boundary for the auth pipeline's business logic.
type StageInput struct {
	RequestID     string
	StageName     string
	ActorID       string
	ActorType     string
	SessionID     string
	Resource      string
	Action        string
	Outcome       audit.Outcome
	Duration      time.Duration
	SourceAddress string

	// RiskIndicators are suspicious-pattern flags observed by the stage.
	RiskIndicators []string
}

// RecordStage accumulates one stage result into the in-flight run for its
// request ID, creating the run on first sight.
func (r *Recorder) RecordStage(in StageInput) error {
	if in.RequestID == "" || in.StageName == "" {
		return fmt.Errorf("%w: request id and stage name are required", audit.ErrInvalidEvent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.inflight[in.RequestID]
	if !ok {
		state = &runState{
			requestID: in.RequestID,
			stages:    make(map[string]StageResult),
		}
		r.inflight[in.RequestID] = state
	}

	// Identity fields come from whichever stage reports them first.
	if state.actorID == "" {
		state.actorID = in.ActorID
	}
	if state.actorType == "" {
		state.actorType = in.ActorType
	}
	if state.sessionID == "" {
		state.sessionID = in.SessionID
	}
	if state.resource == "" {
		state.resource = in.Resource
	}
	if state.action == "" {
		state.action = in.Action
	}
	if state.sourceAddress == "" {
		state.sourceAddress = in.SourceAddress
	}
	state.riskFlags = append(state.riskFlags, in.RiskIndicators...)

	state.stages[in.StageName] = StageResult{
		Name:     in.StageName,
		Duration: in.Duration,
		Outcome:  in.Outcome,
	}
	return nil
}

// Finalize computes end-to-end metrics for the run, emits one event per
// stage plus one summary event to the ledger and discards the in-flight
// state. It never blocks waiting for missing stages: expected stages that
// have not reported are included with outcome unknown.
func (r *Recorder) Finalize(ctx context.Context, requestID string) (*Run, error) {
	r.mu.Lock()
	state, ok := r.inflight[requestID]
	if ok {
		delete(r.inflight, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no in-flight run for request %s", ledger.ErrNotFound, requestID)
	}

	run := r.buildRun(state)

	if err := r.emitRun(ctx, state, run); err != nil {
		return run, err
	}

	metrics.PipelineRunsFinalized.WithLabelValues(string(run.FinalOutcome)).Inc()
	metrics.PipelineTotalDuration.Observe(run.TotalDuration.Seconds())
	if run.ExceededSLA {
		metrics.PipelineSLAViolations.Inc()
		logging.Warn().
			Str("request_id", requestID).
			Dur("total", run.TotalDuration).
			Dur("sla_target", r.cfg.SLATarget).
			Msg("pipeline run exceeded SLA")
	}
	return run, nil
}

// buildRun derives the finalized run from accumulated state.
func (r *Recorder) buildRun(state *runState) *Run {
	run := &Run{
		RequestID:      state.requestID,
		ActorID:        state.actorID,
		SessionID:      state.sessionID,
		Resource:       state.resource,
		Action:         state.action,
		StageDurations: make(map[string]time.Duration),
		StageOutcomes:  make(map[string]audit.Outcome),
	}

	// Mark expected stages that never reported.
	for _, name := range r.cfg.ExpectedStages {
		if _, ok := state.stages[name]; !ok {
			state.stages[name] = StageResult{Name: name, Outcome: audit.OutcomeUnknown}
			run.AnomalyFlags = append(run.AnomalyFlags, "missing_stage:"+name)
		}
	}

	failed := 0
	unknown := 0
	slow := 0
	reported := 0
	var total time.Duration
	var criticalPath string
	var criticalDur time.Duration

	for name, stage := range state.stages {
		run.StageDurations[name] = stage.Duration
		run.StageOutcomes[name] = stage.Outcome
		total += stage.Duration

		switch stage.Outcome {
		case audit.OutcomeFailure:
			failed++
		case audit.OutcomeUnknown:
			unknown++
		}

		if stage.Outcome != audit.OutcomeUnknown {
			reported++
			if avg, ok := r.history.average(name); ok && avg > 0 &&
				float64(stage.Duration) > r.cfg.SlowStageFactor*float64(avg) {
				slow++
				run.AnomalyFlags = append(run.AnomalyFlags, "slow_stage:"+name)
			}
			r.history.observe(name, stage.Duration)
		}

		if criticalPath == "" || stage.Duration > criticalDur {
			criticalPath = name
			criticalDur = stage.Duration
		}
	}

	// Total duration is the sum of stage durations; see the package doc for
	// why this is the documented aggregation rule.
	run.TotalDuration = total
	run.CriticalPath = criticalPath
	run.ExceededSLA = total > r.cfg.SLATarget
	run.AnomalyFlags = append(run.AnomalyFlags, state.riskFlags...)

	switch {
	case failed > 0:
		run.FinalOutcome = audit.OutcomeFailure
	case unknown > 0:
		run.FinalOutcome = audit.OutcomePartial
	default:
		run.FinalOutcome = audit.OutcomeSuccess
	}

	run.RiskScore = riskScore(failed, slow, len(state.riskFlags), len(state.stages), reported)
	return run
}

// riskScore combines failed stages, anomalously slow stages and
// suspicious-pattern flags into a score in [0,1].
func riskScore(failed, slow, flags, stageCount, reported int) float64 {
	if stageCount == 0 {
		return 0
	}

	failScore := float64(failed) / float64(stageCount)

	slowScore := 0.0
	if reported > 0 {
		slowScore = float64(slow) / float64(reported)
	}

	flagScore := float64(flags) * 0.25
	if flagScore > 1 {
		flagScore = 1
	}

	score := 0.4*failScore + 0.3*slowScore + 0.3*flagScore
	if score > 1 {
		score = 1
	}
	return score
}

// emitRun appends one event per stage and the summary event.
func (r *Recorder) emitRun(ctx context.Context, state *runState, run *Run) error {
	actorID := run.ActorID
	if actorID == "" {
		actorID = "unknown"
	}
	action := run.Action
	if action == "" {
		action = "pipeline.stage"
	}

	for name, outcome := range run.StageOutcomes {
		stageEvent := audit.NewStageEvent(audit.StageEventInput{
			RequestID:      run.RequestID,
			StageName:      name,
			ActorID:        actorID,
			ActorType:      state.actorType,
			SessionID:      run.SessionID,
			TargetResource: run.Resource,
			Action:         action,
			Outcome:        outcome,
			Duration:       run.StageDurations[name],
			SourceAddress:  state.sourceAddress,
		})
		if _, err := r.appender.Append(ctx, stageEvent); err != nil {
			return fmt.Errorf("append stage event %s/%s: %w", run.RequestID, name, err)
		}
	}

	if _, err := r.appender.Append(ctx, r.summaryEvent(state, run)); err != nil {
		return fmt.Errorf("append summary event %s: %w", run.RequestID, err)
	}
	return nil
}

// Detail keys used on pipeline.summary events. The aggregator parses these
// back out of the ledger, so they are stable and machine-readable.
const (
	detailTotalMs      = "total_ms"
	detailCriticalPath = "critical_path"
	detailExceededSLA  = "exceeded_sla"
	detailRiskScore    = "risk_score"
	stageDetailPrefix  = "stage_ms."
)

// summaryEvent converts a finalized run into its pipeline.summary event.
func (r *Recorder) summaryEvent(state *runState, run *Run) *audit.Event {
	details := map[string]string{
		detailTotalMs:      strconv.FormatFloat(float64(run.TotalDuration)/float64(time.Millisecond), 'f', 3, 64),
		detailCriticalPath: run.CriticalPath,
		detailExceededSLA:  strconv.FormatBool(run.ExceededSLA),
		detailRiskScore:    strconv.FormatFloat(run.RiskScore, 'f', 4, 64),
	}
	for name, dur := range run.StageDurations {
		details[stageDetailPrefix+name] = strconv.FormatFloat(float64(dur)/float64(time.Millisecond), 'f', 3, 64)
	}

	severity := audit.SeverityInfo
	if run.ExceededSLA || run.FinalOutcome == audit.OutcomeFailure {
		severity = audit.SeverityWarning
	}

	event := &audit.Event{
		Timestamp:      time.Now().UTC(),
		Type:           audit.EventTypePipelineSummary,
		Severity:       severity,
		Actor:          audit.Actor{ID: run.ActorID, Type: state.actorType, SessionID: run.SessionID},
		TargetResource: run.Resource,
		Action:         run.Action,
		Outcome:        run.FinalOutcome,
		SourceAddress:  state.sourceAddress,
		RequestID:      run.RequestID,
		StageDuration:  run.TotalDuration,
		RiskIndicators: append([]string(nil), run.AnomalyFlags...),
		Details:        details,
	}
	if event.Action == "" {
		event.Action = "pipeline.run"
	}
	if event.Actor.ID == "" {
		event.Actor.ID = "unknown"
	}
	return event
}

// InflightCount reports how many runs are currently accumulating.
func (r *Recorder) InflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
