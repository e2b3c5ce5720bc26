// Package gate serializes command executions and debounces input-driven
// triggers.
package gate

import "sync"

// Gate admits at most one execution at a time. While busy, every trigger is
// a no-op; the state flips back only when the in-flight call is released.
type Gate struct {
	mu       sync.Mutex
	busy     bool
	onChange []func(busy bool)
}

// New creates an idle gate.
func New() *Gate {
	return &Gate{}
}

// OnChange registers an observer called after every state transition,
// outside the gate lock.
func (g *Gate) OnChange(fn func(busy bool)) {
	g.mu.Lock()
	g.onChange = append(g.onChange, fn)
	g.mu.Unlock()
}

// TryAdmit moves the gate from idle to busy. It returns false, changing
// nothing, when an execution is already in flight.
func (g *Gate) TryAdmit() bool {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return false
	}
	g.busy = true
	obs := g.onChange
	g.mu.Unlock()

	notify(obs, true)
	return true
}

// Disable forces the gate busy regardless of its state. Startup uses it
// before the first call is issued.
func (g *Gate) Disable() {
	g.mu.Lock()
	changed := !g.busy
	g.busy = true
	obs := g.onChange
	g.mu.Unlock()

	if changed {
		notify(obs, true)
	}
}

// Release re-enables triggers. Releasing an idle gate is harmless.
func (g *Gate) Release() {
	g.mu.Lock()
	changed := g.busy
	g.busy = false
	obs := g.onChange
	g.mu.Unlock()

	if changed {
		notify(obs, false)
	}
}

// Busy reports whether an execution is in flight.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

func notify(obs []func(bool), busy bool) {
	for _, fn := range obs {
		fn(busy)
	}
}
