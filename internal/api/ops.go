// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

// Package api exposes the operational HTTP surface: liveness,
// readiness and Prometheus metrics. There is no data API; the ledger
// is consumed through the Go packages.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/auditchain/internal/logging"
)

// ReadyFunc reports whether the process can serve. A non-nil error
// turns /readyz into a 503.
type ReadyFunc func() error

// NewOpsRouter builds the operational router.
func NewOpsRouter(ready ReadyFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				logging.Warn().Err(err).Msg("Readiness check failed")
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n")) //nolint:errcheck
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
