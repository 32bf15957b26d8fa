// Package endpoint keeps an ordered set of RPC endpoint handles and a
// round-robin cursor over them.
package endpoint

import (
	"sync"

	"solexec-go/internal/execerr"
	"solexec-go/internal/metrics"
)

// Endpoint pairs a display name (usually the URL) with a client handle.
type Endpoint[T any] struct {
	Name   string
	Client T
}

// Pool rotates over endpoints on request. It never skips an endpoint on its
// own; failover is a caller decision.
type Pool[T any] struct {
	mu        sync.RWMutex
	endpoints []Endpoint[T]
	index     int
}

// NewPool copies the given endpoints into a new pool positioned at the first one.
func NewPool[T any](endpoints ...Endpoint[T]) *Pool[T] {
	cp := make([]Endpoint[T], len(endpoints))
	copy(cp, endpoints)
	return &Pool[T]{endpoints: cp}
}

// Current returns the endpoint at the active index.
func (p *Pool[T]) Current() (Endpoint[T], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.endpoints) == 0 {
		var zero Endpoint[T]
		return zero, execerr.ErrPoolEmpty
	}
	return p.endpoints[p.index], nil
}

// Rotate advances the active index modulo the pool size.
func (p *Pool[T]) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return
	}
	p.index = (p.index + 1) % len(p.endpoints)
	metrics.RotationsTotal.Inc()
}

// Index reports the active rotation index.
func (p *Pool[T]) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// Len reports the number of configured endpoints.
func (p *Pool[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// Names lists endpoint names in rotation order.
func (p *Pool[T]) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = ep.Name
	}
	return out
}
