// Package scan gates raw barcode payloads coming off the camera. A scanner
// fires the same code many times per second while it is in frame; downstream
// wants exactly one event per deliberate scan, rearmed only when the user
// asks to scan again.
package scan

import "sync"

// Handler consumes one raw decoded payload.
type Handler func(raw string)

// Gate delivers at most one payload per arm.
type Gate struct {
	handler Handler

	mu    sync.Mutex
	fired bool
}

func NewGate(handler Handler) *Gate {
	return &Gate{handler: handler}
}

// Deliver forwards raw to the handler unless the gate has already fired.
// Reports whether the payload was forwarded.
func (g *Gate) Deliver(raw string) bool {
	g.mu.Lock()
	if g.fired {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	g.mu.Unlock()

	g.handler(raw)
	return true
}

// Reset rearms the gate for the next scan.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.fired = false
	g.mu.Unlock()
}
