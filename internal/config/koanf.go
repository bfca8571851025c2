// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/auditchain/config.yaml",
	"/etc/auditchain/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "AUDITCHAIN_CONFIG"

// envPrefix namespaces all environment overrides.
const envPrefix = "AUDITCHAIN_"

// Load builds the configuration from defaults, an optional YAML file
// and AUDITCHAIN_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first readable config file path, or ""
// when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps AUDITCHAIN_* variable names to koanf paths.
//
// Examples:
//   - AUDITCHAIN_SERVER_PORT        -> server.port
//   - AUDITCHAIN_LEDGER_DIR         -> ledger.dir
//   - AUDITCHAIN_PIPELINE_SLA_TARGET -> pipeline.sla_target
//
// Keys with underscores inside a section name need explicit mappings;
// everything else splits on the first underscore.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	explicit := map[string]string{
		"ledger_verify_chunk_size":      "ledger.verify_chunk_size",
		"ledger_verify_rate_per_second": "ledger.verify_rate_per_second",
		"pipeline_sla_target":           "pipeline.sla_target",
		"pipeline_expected_stages":      "pipeline.expected_stages",
		"pipeline_slow_stage_factor":    "pipeline.slow_stage_factor",
		"pipeline_report_interval":      "pipeline.report_interval",
		"correlation_pass_interval":     "correlation.pass_interval",
		"correlation_scan_batch":        "correlation.scan_batch",
		"retention_archive_after":       "retention.archive_after",
		"retention_retain_for":          "retention.retain_for",
		"retention_archive_dir":         "retention.archive_dir",
		"retention_max_scan":            "retention.max_scan",
	}
	if path, ok := explicit[key]; ok {
		return path
	}

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}
