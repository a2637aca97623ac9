// Package debounce coalesces bursts of triggers into a single call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs an action once per burst of triggers. The first trigger
// opens a window; every later trigger restarts the wait, but the action
// fires no later than maxWait after the trigger that opened the window.
type Debouncer struct {
	wait    time.Duration
	maxWait time.Duration
	action  func()

	mu       sync.Mutex
	pending  bool
	deadline time.Time
	timer    *time.Timer
	gen      uint64
}

// New creates a Debouncer. A maxWait shorter than wait is raised to wait.
func New(wait, maxWait time.Duration, action func()) *Debouncer {
	if maxWait < wait {
		maxWait = wait
	}
	return &Debouncer{wait: wait, maxWait: maxWait, action: action}
}

// Trigger schedules the action, absorbing it into an open window if there is one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.pending {
		d.pending = true
		d.deadline = now.Add(d.maxWait)
	}

	delay := min(d.wait, d.deadline.Sub(now))
	if d.timer != nil {
		d.timer.Stop()
	}

	// A timer that already fired may still be waiting on mu; the generation
	// lets it notice it was superseded.
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

// Pending reports whether a window is open.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush runs a pending action immediately on the calling goroutine.
func (d *Debouncer) Flush() {
	if d.take() {
		d.action()
	}
}

// Stop discards a pending action.
func (d *Debouncer) Stop() {
	d.take()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.action()
}

func (d *Debouncer) take() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.pending {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.gen++
	return true
}
