// Auditchain - Tamper-Evident Audit Ledger for Authentication Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditchain

package pipeline

import (
	"sync"
	"time"
)

// stageHistory tracks rolling per-stage duration averages used to flag
// anomalously slow stages. Bounded per stage: once maxHistorySamples is
// reached the running mean decays toward recent observations rather than
// accumulating forever.
type stageHistory struct {
	mu    sync.Mutex
	stats map[string]*stageStat
}

type stageStat struct {
	count int64
	sum   time.Duration
}

// maxHistorySamples caps the effective history window per stage.
const maxHistorySamples = 1024

func newStageHistory() *stageHistory {
	return &stageHistory{stats: make(map[string]*stageStat)}
}

// observe records one stage duration.
func (h *stageHistory) observe(name string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stat, ok := h.stats[name]
	if !ok {
		stat = &stageStat{}
		h.stats[name] = stat
	}

	if stat.count >= maxHistorySamples {
		// Halve weight so old samples decay instead of dominating.
		stat.count /= 2
		stat.sum /= 2
	}
	stat.count++
	stat.sum += d
}

// average returns the historical mean for a stage, or false when the stage
// has too few samples to judge slowness.
func (h *stageHistory) average(name string) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stat, ok := h.stats[name]
	if !ok || stat.count < 3 {
		return 0, false
	}
	return stat.sum / time.Duration(stat.count), true
}
