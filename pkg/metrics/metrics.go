// Package metrics defines the collector interface the cache subsystem
// reports into, with a no-op default. Concrete exporters live in the
// subpackages.
package metrics

import "time"

// Collector receives cache observability events. Implementations must
// be safe for concurrent use.
type Collector interface {
	// RecordGet records a read against a backend and whether it hit.
	RecordGet(backend string, hit bool, duration time.Duration)

	// RecordSet records a write against a backend.
	RecordSet(backend string, success bool, duration time.Duration)

	// RecordRemove records an invalidation against a backend.
	RecordRemove(backend string, success bool, duration time.Duration)

	// RecordFallback records the composite falling through after a
	// fault of the named backend.
	RecordFallback(backend, op string)

	// RecordSwallowedFault records a write-path fault that was logged
	// and swallowed instead of propagated.
	RecordSwallowedFault(backend, op string)

	// RecordCircuitState records a circuit breaker transition.
	RecordCircuitState(backend string, state CircuitState)

	// RecordRepositoryGet records a decorator read and whether the
	// cache answered it without touching the wrapped repository.
	RecordRepositoryGet(entity string, hit bool, duration time.Duration)

	// RecordInvalidation records a decorator write-through invalidation.
	RecordInvalidation(entity string)
}

// CircuitState is the state of a backend's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the state label used in metrics and logs.
func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// NoOpCollector discards every event. It is the default wherever no
// collector is configured.
type NoOpCollector struct{}

func (NoOpCollector) RecordGet(string, bool, time.Duration)           {}
func (NoOpCollector) RecordSet(string, bool, time.Duration)           {}
func (NoOpCollector) RecordRemove(string, bool, time.Duration)        {}
func (NoOpCollector) RecordFallback(string, string)                   {}
func (NoOpCollector) RecordSwallowedFault(string, string)             {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)         {}
func (NoOpCollector) RecordRepositoryGet(string, bool, time.Duration) {}
func (NoOpCollector) RecordInvalidation(string)                       {}

var _ Collector = NoOpCollector{}

// MultiCollector fans every event out to several collectors, so a
// Prometheus exporter and the JSON stats collector can observe the same
// events.
type MultiCollector []Collector

var _ Collector = MultiCollector{}

// Multi combines collectors into one.
func Multi(collectors ...Collector) MultiCollector {
	return MultiCollector(collectors)
}

func (m MultiCollector) RecordGet(backend string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordGet(backend, hit, duration)
	}
}

func (m MultiCollector) RecordSet(backend string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordSet(backend, success, duration)
	}
}

func (m MultiCollector) RecordRemove(backend string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordRemove(backend, success, duration)
	}
}

func (m MultiCollector) RecordFallback(backend, op string) {
	for _, c := range m {
		c.RecordFallback(backend, op)
	}
}

func (m MultiCollector) RecordSwallowedFault(backend, op string) {
	for _, c := range m {
		c.RecordSwallowedFault(backend, op)
	}
}

func (m MultiCollector) RecordCircuitState(backend string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(backend, state)
	}
}

func (m MultiCollector) RecordRepositoryGet(entity string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordRepositoryGet(entity, hit, duration)
	}
}

func (m MultiCollector) RecordInvalidation(entity string) {
	for _, c := range m {
		c.RecordInvalidation(entity)
	}
}
