// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package watcher

import (
	"sync"
	"time"
)

// Debouncer collapses a burst of observations into one emission carrying the
// latest observation time. Every Add restarts the window, so a steady stream
// of events is emitted once it goes quiet.
type Debouncer struct {
	window time.Duration
	emit   func(time.Time)

	mu      sync.Mutex
	timer   *time.Timer
	latest  time.Time
	pending bool
	stopped bool
}

// NewDebouncer creates a debouncer that calls emit on its own goroutine after
// window has passed without a new observation.
func NewDebouncer(window time.Duration, emit func(time.Time)) *Debouncer {
	return &Debouncer{window: window, emit: emit}
}

// Add records an observation.
func (d *Debouncer) Add(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if !d.pending || at.After(d.latest) {
		d.latest = at
	}
	d.pending = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return
	}
	at := d.latest
	d.pending = false
	d.mu.Unlock()

	d.emit(at)
}

// Stop discards any pending observation. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
