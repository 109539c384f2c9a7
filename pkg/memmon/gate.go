package memmon

import "sync"

// gate is a binary event. While open, the channel returned by opened()
// is closed, so waiters fall through immediately; while closed, waiters
// block on it with no polling. Set and Clear are idempotent.
type gate struct {
	mu   sync.Mutex
	ch   chan struct{}
	open bool
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

// Set opens the gate, waking all current waiters.
func (g *gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		g.open = true
		close(g.ch)
	}
}

// Clear closes the gate. Waiters that already fell through are not
// affected; new waiters block until the next Set.
func (g *gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		g.open = false
		g.ch = make(chan struct{})
	}
}

// IsSet reports whether the gate is open.
func (g *gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// opened returns a channel that is closed while the gate is open.
func (g *gate) opened() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}
