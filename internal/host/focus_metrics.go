// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/host/focus_metrics.go
// Summary: Counts changes of the active tab.
// Usage: The host feeds it from every tab bar update; waymux logs the totals on exit.

package host

import (
	"log"
	"sync"
	"time"

	"github.com/framegrace/waymux/tabs"
)

type FocusMetrics struct {
	mu         sync.Mutex
	last       uint64
	changes    uint64
	lastChange time.Time
	logger     *log.Logger
}

type FocusStats struct {
	LastTabID  uint64
	Changes    uint64
	LastChange time.Time
}

func NewFocusMetrics(logger *log.Logger) *FocusMetrics {
	if logger == nil {
		logger = log.Default()
	}
	return &FocusMetrics{logger: logger}
}

// Observe records t when it differs from the previously active tab. A nil
// tab resets the comparison without counting.
func (f *FocusMetrics) Observe(t *tabs.Tab, index int) {
	f.mu.Lock()
	if t == nil {
		f.last = 0
		f.mu.Unlock()
		return
	}
	if t.ID() == f.last {
		f.mu.Unlock()
		return
	}
	f.last = t.ID()
	f.changes++
	f.lastChange = time.Now()
	changes := f.changes
	f.mu.Unlock()

	f.logger.Printf("metric focus tab=%d index=%d changes=%d", t.ID(), index, changes)
}

func (f *FocusMetrics) Snapshot() FocusStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FocusStats{LastTabID: f.last, Changes: f.changes, LastChange: f.lastChange}
}
