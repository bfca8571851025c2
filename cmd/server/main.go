// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/auditchain/internal/api"
	"github.com/tomtom215/auditchain/internal/audit"
	"github.com/tomtom215/auditchain/internal/config"
	"github.com/tomtom215/auditchain/internal/correlation"
	"github.com/tomtom215/auditchain/internal/ledger"
	"github.com/tomtom215/auditchain/internal/logging"
	"github.com/tomtom215/auditchain/internal/pipeline"
	"github.com/tomtom215/auditchain/internal/retention"
	"github.com/tomtom215/auditchain/internal/supervisor"
	"github.com/tomtom215/auditchain/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("ledger_dir", cfg.Ledger.Dir).
		Bool("correlation", cfg.Correlation.Enabled).
		Bool("retention", cfg.Retention.Enabled).
		Msg("Starting auditchain")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Startup failed")
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	store, badgerStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing ledger store")
		}
	}()

	led, err := ledger.Open(ctx, store)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	led.ConfigureVerification(cfg.Ledger.VerifyChunkSize, cfg.Ledger.VerifyRatePerSecond)
	logging.Info().Uint64("last_sequence", led.LastSequence()).Msg("Ledger opened")

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if badgerStore != nil {
		tree.AddDataService(services.NewMaintenanceService(badgerStore, 10*time.Minute))
	}

	if cfg.Correlation.Enabled {
		corrStore := correlation.Store(correlation.NewMemoryStore())
		if badgerStore != nil {
			corrStore = correlation.NewBadgerStore(badgerStore.DB())
		}
		engine, err := buildCorrelationEngine(cfg, led, corrStore)
		if err != nil {
			return err
		}
		tree.AddBackgroundService(services.NewRunnerService("correlation-engine", engine))
		logging.Info().Int("rules", len(cfg.Correlation.Rules)).Msg("Correlation engine added")
	}

	if cfg.Pipeline.ReportInterval > 0 {
		agg := pipeline.NewAggregator(led, cfg.Pipeline.StageThresholds)
		monitor := pipeline.NewMonitor(agg, cfg.Pipeline.ReportInterval)
		tree.AddBackgroundService(services.NewRunnerService("sla-monitor", monitor))
	}

	if cfg.Retention.Enabled {
		manager, err := buildRetentionManager(cfg, store)
		if err != nil {
			return err
		}
		tree.AddBackgroundService(services.NewRunnerService("retention-manager", manager))
	}

	opsServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewOpsRouter(readiness(ctx, store)),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, 10*time.Second))
	logging.Info().Str("addr", opsServer.Addr).Msg("Ops HTTP service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}

// openStore selects the durable Badger store, or the in-memory store
// when no directory is configured. The second return is non-nil only
// for Badger and feeds the maintenance service.
func openStore(cfg *config.Config) (ledger.Store, *ledger.BadgerStore, error) {
	if cfg.Ledger.Dir == "" {
		logging.Warn().Msg("No ledger directory configured, using in-memory store")
		return ledger.NewMemoryStore(), nil, nil
	}
	db, err := ledger.OpenBadger(cfg.Ledger.Dir)
	if err != nil {
		return nil, nil, err
	}
	bs := ledger.NewBadgerStore(db)
	return bs, bs, nil
}

func buildCorrelationEngine(cfg *config.Config, led *ledger.Ledger, corrStore correlation.Store) (*correlation.Engine, error) {
	engineCfg := correlation.DefaultConfig()
	if cfg.Correlation.PassInterval > 0 {
		engineCfg.PassInterval = cfg.Correlation.PassInterval
	}
	if cfg.Correlation.ScanBatch > 0 {
		engineCfg.ScanBatch = cfg.Correlation.ScanBatch
	}

	engine := correlation.NewEngine(led.Store(), led, corrStore, engineCfg, led.LastSequence())
	for _, rc := range cfg.Correlation.Rules {
		if err := engine.RegisterRule(toRule(rc)); err != nil {
			return nil, fmt.Errorf("correlation rule %s: %w", rc.ID, err)
		}
	}
	return engine, nil
}

func toRule(rc config.RuleConfig) correlation.Rule {
	fields := make([]correlation.MatchField, 0, len(rc.MatchFields))
	for _, f := range rc.MatchFields {
		fields = append(fields, correlation.MatchField(f))
	}
	secondaries := make([]audit.EventType, 0, len(rc.SecondaryTypes))
	for _, t := range rc.SecondaryTypes {
		secondaries = append(secondaries, audit.EventType(t))
	}
	return correlation.Rule{
		ID:               rc.ID,
		TimeWindow:       rc.TimeWindow,
		MatchFields:      fields,
		PrimaryType:      audit.EventType(rc.PrimaryType),
		SecondaryTypes:   secondaries,
		MaxDelay:         rc.MaxDelay,
		AnomalyThreshold: rc.AnomalyThreshold,
		Alert:            rc.Alert,
	}
}

func buildRetentionManager(cfg *config.Config, store ledger.Store) (*retention.Manager, error) {
	var sink retention.Sink
	if cfg.Retention.ArchiveDir != "" && cfg.Retention.ArchiveAfter > 0 {
		fileSink, err := retention.NewFileSink(cfg.Retention.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("archive sink: %w", err)
		}
		sink = fileSink
	}
	return retention.NewManager(store, sink, retention.Config{
		Policy: retention.Policy{
			ArchiveAfter: cfg.Retention.ArchiveAfter,
			RetainFor:    cfg.Retention.RetainFor,
			TagOverrides: cfg.Retention.TagOverrides,
		},
		Interval: cfg.Retention.Interval,
		MaxScan:  cfg.Retention.MaxScan,
	}), nil
}

// readiness probes the store with a cheap tail read.
func readiness(ctx context.Context, store ledger.Store) api.ReadyFunc {
	return func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if _, err := store.Last(probeCtx); err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("ledger store not reachable: %w", err)
		}
		return nil
	}
}
