// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the auditchain server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Correlation CorrelationConfig `koanf:"correlation"`
	Retention   RetentionConfig   `koanf:"retention"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig covers the operational HTTP endpoint (health, metrics).
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LedgerConfig covers ledger persistence and verification.
type LedgerConfig struct {
	// Dir is the Badger database directory. Empty selects the
	// in-memory store, for development only.
	Dir string `koanf:"dir"`

	// VerifyChunkSize bounds how many entries a verification pass
	// loads at once.
	VerifyChunkSize int `koanf:"verify_chunk_size"`

	// VerifyRatePerSecond throttles verification reads so background
	// checks do not starve appends.
	VerifyRatePerSecond int `koanf:"verify_rate_per_second"`
}

// PipelineConfig covers stage recording and SLA evaluation. The daemon
// only runs the SLA monitor; SLATarget, ExpectedStages and
// SlowStageFactor configure the pipeline.Recorder that an embedding
// auth service constructs in-process (see pipeline.Config).
type PipelineConfig struct {
	SLATarget       time.Duration `koanf:"sla_target"`
	ExpectedStages  []string      `koanf:"expected_stages"`
	SlowStageFactor float64       `koanf:"slow_stage_factor"`

	// ReportInterval is how often the SLA monitor rolls up trailing
	// runs. Zero disables the monitor.
	ReportInterval time.Duration `koanf:"report_interval"`

	// StageThresholds maps stage names to per-stage latency budgets
	// used in bottleneck analysis.
	StageThresholds map[string]time.Duration `koanf:"stage_thresholds"`
}

// CorrelationConfig covers the correlation engine and its rules.
type CorrelationConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PassInterval time.Duration `koanf:"pass_interval"`
	ScanBatch    int           `koanf:"scan_batch"`
	Rules        []RuleConfig  `koanf:"rules"`
}

// RuleConfig declares one correlation rule in the config file.
type RuleConfig struct {
	ID               string        `koanf:"id"`
	TimeWindow       time.Duration `koanf:"time_window"`
	MatchFields      []string      `koanf:"match_fields"`
	PrimaryType      string        `koanf:"primary_type"`
	SecondaryTypes   []string      `koanf:"secondary_types"`
	MaxDelay         time.Duration `koanf:"max_delay"`
	AnomalyThreshold float64       `koanf:"anomaly_threshold"`
	Alert            bool          `koanf:"alert"`
}

// RetentionConfig covers archival and deletion thresholds.
type RetentionConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval"`
	ArchiveAfter time.Duration `koanf:"archive_after"`
	RetainFor    time.Duration `koanf:"retain_for"`
	ArchiveDir   string        `koanf:"archive_dir"`
	MaxScan      int           `koanf:"max_scan"`

	// TagOverrides extends retention for events carrying specific
	// compliance tags, e.g. {"sox": "8760h"}.
	TagOverrides map[string]time.Duration `koanf:"tag_overrides"`
}

// LoggingConfig mirrors the logging package's options.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the baseline every deployment starts from.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8437,
			Timeout: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			Dir:                 "/data/auditchain",
			VerifyChunkSize:     512,
			VerifyRatePerSecond: 64,
		},
		Pipeline: PipelineConfig{
			SLATarget:       150 * time.Millisecond,
			ExpectedStages:  []string{"validation", "credential", "policy", "permission"},
			SlowStageFactor: 2.0,
			ReportInterval:  time.Minute,
		},
		Correlation: CorrelationConfig{
			Enabled:      true,
			PassInterval: 15 * time.Second,
			ScanBatch:    512,
		},
		Retention: RetentionConfig{
			Enabled:      true,
			Interval:     time.Hour,
			ArchiveAfter: 30 * 24 * time.Hour,
			RetainFor:    90 * 24 * time.Hour,
			ArchiveDir:   "/data/auditchain-archive",
			MaxScan:      10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Ledger.VerifyChunkSize <= 0 {
		return fmt.Errorf("ledger.verify_chunk_size must be positive")
	}
	if c.Ledger.VerifyRatePerSecond <= 0 {
		return fmt.Errorf("ledger.verify_rate_per_second must be positive")
	}
	if c.Pipeline.SLATarget <= 0 {
		return fmt.Errorf("pipeline.sla_target must be positive")
	}
	if len(c.Pipeline.ExpectedStages) == 0 {
		return fmt.Errorf("pipeline.expected_stages must not be empty")
	}
	if c.Pipeline.SlowStageFactor < 1.0 {
		return fmt.Errorf("pipeline.slow_stage_factor must be >= 1.0")
	}
	if c.Correlation.Enabled && c.Correlation.PassInterval <= 0 {
		return fmt.Errorf("correlation.pass_interval must be positive")
	}
	for i, r := range c.Correlation.Rules {
		if r.ID == "" {
			return fmt.Errorf("correlation.rules[%d]: id is required", i)
		}
		if r.TimeWindow <= 0 {
			return fmt.Errorf("correlation rule %q: time_window must be positive", r.ID)
		}
		if r.AnomalyThreshold < 0 || r.AnomalyThreshold > 1 {
			return fmt.Errorf("correlation rule %q: anomaly_threshold must be in [0,1]", r.ID)
		}
	}
	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be positive")
		}
		if c.Retention.RetainFor <= 0 {
			return fmt.Errorf("retention.retain_for must be positive")
		}
		if c.Retention.ArchiveAfter > 0 && c.Retention.ArchiveAfter >= c.Retention.RetainFor {
			return fmt.Errorf("retention.archive_after must be shorter than retention.retain_for")
		}
	}
	return nil
}
