// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package services

import (
	"context"
	"time"
)

// Maintainer matches stores with a periodic maintenance loop.
//
// Satisfied by *ledger.BadgerStore, whose Maintain runs value-log
// garbage collection.
type Maintainer interface {
	Maintain(ctx context.Context, interval time.Duration) error
}

// MaintenanceService runs store maintenance under supervision.
type MaintenanceService struct {
	store    Maintainer
	interval time.Duration
	name     string
}

// NewMaintenanceService wraps a store maintenance loop. A non-positive
// interval defaults to ten minutes.
func NewMaintenanceService(store Maintainer, interval time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MaintenanceService{
		store:    store,
		interval: interval,
		name:     "store-maintenance",
	}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	return m.store.Maintain(ctx, m.interval)
}

// String implements fmt.Stringer for logging.
func (m *MaintenanceService) String() string {
	return m.name
}
