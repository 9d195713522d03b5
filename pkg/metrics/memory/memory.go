// Package memory provides an in-memory metrics collector for tests and
// for the ops server's JSON stats endpoint.
package memory

import (
	"sync"
	"time"

	"cacheside/pkg/metrics"
)

// Counts is a snapshot of the counters for one backend.
type Counts struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Sets            int64 `json:"sets"`
	SetFailures     int64 `json:"set_failures"`
	Removes         int64 `json:"removes"`
	RemoveFailures  int64 `json:"remove_failures"`
	Fallbacks       int64 `json:"fallbacks"`
	SwallowedFaults int64 `json:"swallowed_faults"`
}

// Collector accumulates counters per backend and per entity.
type Collector struct {
	mu            sync.Mutex
	backends      map[string]*Counts
	repoHits      map[string]int64
	repoMisses    map[string]int64
	invalidations map[string]int64
	circuit       map[string]metrics.CircuitState
}

var _ metrics.Collector = (*Collector)(nil)

// New returns an empty collector.
func New() *Collector {
	return &Collector{
		backends:      make(map[string]*Counts),
		repoHits:      make(map[string]int64),
		repoMisses:    make(map[string]int64),
		invalidations: make(map[string]int64),
		circuit:       make(map[string]metrics.CircuitState),
	}
}

func (c *Collector) counts(backend string) *Counts {
	counts, ok := c.backends[backend]
	if !ok {
		counts = &Counts{}
		c.backends[backend] = counts
	}
	return counts
}

// RecordGet implements metrics.Collector.
func (c *Collector) RecordGet(backend string, hit bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.counts(backend).Hits++
	} else {
		c.counts(backend).Misses++
	}
}

// RecordSet implements metrics.Collector.
func (c *Collector) RecordSet(backend string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.counts(backend).Sets++
	} else {
		c.counts(backend).SetFailures++
	}
}

// RecordRemove implements metrics.Collector.
func (c *Collector) RecordRemove(backend string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.counts(backend).Removes++
	} else {
		c.counts(backend).RemoveFailures++
	}
}

// RecordFallback implements metrics.Collector.
func (c *Collector) RecordFallback(backend, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts(backend).Fallbacks++
}

// RecordSwallowedFault implements metrics.Collector.
func (c *Collector) RecordSwallowedFault(backend, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts(backend).SwallowedFaults++
}

// RecordCircuitState implements metrics.Collector.
func (c *Collector) RecordCircuitState(backend string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuit[backend] = state
}

// RecordRepositoryGet implements metrics.Collector.
func (c *Collector) RecordRepositoryGet(entity string, hit bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.repoHits[entity]++
	} else {
		c.repoMisses[entity]++
	}
}

// RecordInvalidation implements metrics.Collector.
func (c *Collector) RecordInvalidation(entity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations[entity]++
}

// BackendCounts returns a snapshot of the counters for backend.
func (c *Collector) BackendCounts(backend string) Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counts, ok := c.backends[backend]; ok {
		return *counts
	}
	return Counts{}
}

// RepositoryHits returns the decorator cache-hit count for entity.
func (c *Collector) RepositoryHits(entity string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repoHits[entity]
}

// RepositoryMisses returns the decorator cache-miss count for entity.
func (c *Collector) RepositoryMisses(entity string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repoMisses[entity]
}

// Invalidations returns the invalidation count for entity.
func (c *Collector) Invalidations(entity string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations[entity]
}

// CircuitState returns the last recorded circuit state for backend.
func (c *Collector) CircuitState(backend string) metrics.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circuit[backend]
}

// Snapshot returns a copy of all per-backend counters, keyed by name.
func (c *Collector) Snapshot() map[string]Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Counts, len(c.backends))
	for name, counts := range c.backends {
		out[name] = *counts
	}
	return out
}
