package resilience

import "time"

// Config tunes the circuit breaker and per-operation timeout wrapped
// around a cache backend.
type Config struct {
	// Timeout bounds each backend operation. Zero disables the bound.
	Timeout time.Duration

	// CircuitBreaker tunes when the breaker opens and recovers.
	CircuitBreaker BreakerConfig
}

// BreakerConfig mirrors the gobreaker settings we expose.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the closed-state period after which counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ReadyToTrip decides when the breaker opens. Nil trips after five
	// consecutive failures; DefaultConfig installs a rate-based rule
	// instead.
	ReadyToTrip func(counts Counts) bool
}

// Counts mirrors gobreaker.Counts without leaking the dependency.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns settings suited to a distributed backend: a
// one-second operation bound and a breaker that opens on a sustained
// 15% failure rate.
func DefaultConfig() Config {
	return Config{
		Timeout: time.Second,
		CircuitBreaker: BreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				if counts.Requests < 20 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.15
			},
		},
	}
}

// WithTimeout returns a copy of the config with the given timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}
