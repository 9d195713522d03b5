// Package prometheus exports cache metrics to Prometheus.
package prometheus

import (
	"time"

	"cacheside/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector backed by Prometheus vectors.
type Collector struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	sets            *prometheus.CounterVec
	removes         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	swallowedFaults *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec

	getLatency    *prometheus.HistogramVec
	setLatency    *prometheus.HistogramVec
	removeLatency *prometheus.HistogramVec

	repoHits      *prometheus.CounterVec
	repoMisses    *prometheus.CounterVec
	repoLatency   *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
}

var _ metrics.Collector = (*Collector)(nil)

var latencyBuckets = prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

// New creates a collector with all vectors under the given namespace.
// Register it with a registry before use.
func New(namespace string) *Collector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   latencyBuckets,
		}, labels)
	}

	return &Collector{
		hits:            counter("cache_hits_total", "Cache hits per backend", "backend"),
		misses:          counter("cache_misses_total", "Cache misses per backend", "backend"),
		sets:            counter("cache_sets_total", "Cache set operations per backend", "backend", "status"),
		removes:         counter("cache_removes_total", "Cache remove operations per backend", "backend", "status"),
		fallbacks:       counter("cache_fallbacks_total", "Composite fallbacks after a backend fault", "backend", "op"),
		swallowedFaults: counter("cache_swallowed_faults_total", "Write-path faults logged and swallowed", "backend", "op"),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_circuit_state",
			Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
		}, []string{"backend"}),
		getLatency:    histogram("cache_get_duration_seconds", "Cache get latency", "backend"),
		setLatency:    histogram("cache_set_duration_seconds", "Cache set latency", "backend"),
		removeLatency: histogram("cache_remove_duration_seconds", "Cache remove latency", "backend"),
		repoHits:      counter("repository_cache_hits_total", "Decorator reads answered from cache", "entity"),
		repoMisses:    counter("repository_cache_misses_total", "Decorator reads that reached the repository", "entity"),
		repoLatency:   histogram("repository_get_duration_seconds", "Decorator read latency", "entity"),
		invalidations: counter("repository_invalidations_total", "Write-through invalidations per entity", "entity"),
	}
}

// Register registers every vector with the registry.
func (c *Collector) Register(registry *prometheus.Registry) error {
	for _, col := range c.collectors() {
		if err := registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Describe implements prometheus.Collector so the whole set can be
// registered with prometheus.MustRegister.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.hits, c.misses, c.sets, c.removes, c.fallbacks, c.swallowedFaults,
		c.circuitState, c.getLatency, c.setLatency, c.removeLatency,
		c.repoHits, c.repoMisses, c.repoLatency, c.invalidations,
	}
}

func status(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// RecordGet implements metrics.Collector.
func (c *Collector) RecordGet(backend string, hit bool, duration time.Duration) {
	if hit {
		c.hits.WithLabelValues(backend).Inc()
	} else {
		c.misses.WithLabelValues(backend).Inc()
	}
	c.getLatency.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordSet implements metrics.Collector.
func (c *Collector) RecordSet(backend string, success bool, duration time.Duration) {
	c.sets.WithLabelValues(backend, status(success)).Inc()
	c.setLatency.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordRemove implements metrics.Collector.
func (c *Collector) RecordRemove(backend string, success bool, duration time.Duration) {
	c.removes.WithLabelValues(backend, status(success)).Inc()
	c.removeLatency.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordFallback implements metrics.Collector.
func (c *Collector) RecordFallback(backend, op string) {
	c.fallbacks.WithLabelValues(backend, op).Inc()
}

// RecordSwallowedFault implements metrics.Collector.
func (c *Collector) RecordSwallowedFault(backend, op string) {
	c.swallowedFaults.WithLabelValues(backend, op).Inc()
}

// RecordCircuitState implements metrics.Collector.
func (c *Collector) RecordCircuitState(backend string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(backend).Set(float64(state))
}

// RecordRepositoryGet implements metrics.Collector.
func (c *Collector) RecordRepositoryGet(entity string, hit bool, duration time.Duration) {
	if hit {
		c.repoHits.WithLabelValues(entity).Inc()
	} else {
		c.repoMisses.WithLabelValues(entity).Inc()
	}
	c.repoLatency.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordInvalidation implements metrics.Collector.
func (c *Collector) RecordInvalidation(entity string) {
	c.invalidations.WithLabelValues(entity).Inc()
}
