package gate

import (
	"sync"
	"time"
)

// DefaultQuietWindow is the input debounce window of the dashboard.
const DefaultQuietWindow = 400 * time.Millisecond

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, fn func()) Timer

func realAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Debouncer collapses bursts of triggers into one call: every Trigger
// restarts the quiet window, and only the last function runs once the
// window elapses uninterrupted.
type Debouncer struct {
	window    time.Duration
	afterFunc AfterFunc

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDebouncer creates a debouncer. A non-positive window uses
// DefaultQuietWindow; a nil afterFunc uses the wall clock.
func NewDebouncer(window time.Duration, afterFunc AfterFunc) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Debouncer{window: window, afterFunc: afterFunc}
}

// Window returns the quiet window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger records an event and (re)starts the quiet window for fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.afterFunc(d.window, func() {
		d.mu.Lock()
		// A timer that already fired when Stop was called must not run a
		// superseded function.
		stale := gen != d.gen
		d.mu.Unlock()
		if stale {
			return
		}

		fn()

		d.mu.Lock()
		if gen == d.gen {
			d.timer = nil
		}
		d.mu.Unlock()
	})
}

// Pending reports whether a debounced call is waiting for its window or
// still running.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
