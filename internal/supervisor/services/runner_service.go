// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package services

import (
	"context"
)

// Runner matches components that run until their context is canceled.
//
// Satisfied by *correlation.Engine and *retention.Manager through their
// RunWithContext methods.
type Runner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService wraps a Runner as a supervised service. The supervisor
// restarts the component if RunWithContext returns before shutdown.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService creates a service wrapper with the given name. The
// name identifies the service in supervisor log output.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	return r.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (r *RunnerService) String() string {
	return r.name
}
