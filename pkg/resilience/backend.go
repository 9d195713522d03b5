// Package resilience wraps a cache backend with circuit breaker and
// timeout protection. When the transport is down, the breaker converts
// slow repeated failures into an immediate backend-unavailable answer,
// which lets the composite fall back without waiting on a dead socket.
package resilience

import (
	"context"
	"errors"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/logging"
	"cacheside/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Backend wraps a cache.Backend with a circuit breaker and a
// per-operation timeout.
type Backend struct {
	inner   cache.Backend
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
	metrics metrics.Collector
}

var _ cache.Backend = (*Backend)(nil)

// Option customizes the wrapper.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(b *Backend) { b.metrics = m }
}

// Wrap protects inner with the given config.
func Wrap(inner cache.Backend, config Config, opts ...Option) *Backend {
	b := &Backend{
		inner:   inner,
		timeout: config.Timeout,
		logger:  logging.Global().Named("resilience").Named(inner.Name()),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(b)
	}

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreaker.ReadyToTrip != nil {
				return config.CircuitBreaker.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		// A cancelled caller is not a backend failure; counting it
		// would open the breaker on a healthy transport.
		IsSuccessful: func(err error) bool {
			return err == nil || cache.IsCancellation(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			b.metrics.RecordCircuitState(name, circuitState(to))
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// execute runs op through the breaker with the timeout applied, and
// normalizes breaker and deadline errors into the cache error taxonomy.
func (b *Backend) execute(ctx context.Context, name string, op func(ctx context.Context) (any, error)) (any, error) {
	opCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	result, err := b.cb.Execute(func() (any, error) {
		return op(opCtx)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("circuit open, request rejected", zap.String("op", name))
		return nil, cache.Unavailable(b.inner.Name(), name, err)
	}

	// A deadline we imposed is a backend fault; the caller's own
	// cancellation passes through untouched.
	if cache.IsCancellation(err) && ctx.Err() == nil {
		b.logger.Warn("operation timed out",
			zap.String("op", name),
			zap.Duration("timeout", b.timeout),
		)
		return nil, cache.Unavailable(b.inner.Name(), name, context.DeadlineExceeded)
	}

	return nil, err
}

// Get implements cache.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type getResult struct {
		data []byte
		ok   bool
	}
	result, err := b.execute(ctx, "get", func(ctx context.Context) (any, error) {
		data, ok, err := b.inner.Get(ctx, key)
		return getResult{data, ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := result.(getResult)
	return r.data, r.ok, nil
}

// Set implements cache.Backend.
func (b *Backend) Set(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error {
	_, err := b.execute(ctx, "set", func(ctx context.Context) (any, error) {
		return nil, b.inner.Set(ctx, key, value, opts)
	})
	return err
}

// Remove implements cache.Backend.
func (b *Backend) Remove(ctx context.Context, key string) error {
	_, err := b.execute(ctx, "remove", func(ctx context.Context) (any, error) {
		return nil, b.inner.Remove(ctx, key)
	})
	return err
}

// Exists implements cache.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	result, err := b.execute(ctx, "exists", func(ctx context.Context) (any, error) {
		return b.inner.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// GetOrSet composes the wrapper's own Get and Set around the factory
// instead of delegating wholesale, so repository latency inside the
// factory never counts against the breaker.
func (b *Backend) GetOrSet(ctx context.Context, key string, factory cache.Factory, opts cache.EntryOptions) ([]byte, error) {
	data, ok, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}

	data, err = factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Set(ctx, key, data, opts); err != nil {
		return nil, err
	}
	return data, nil
}

// RemoveByPattern implements cache.Backend.
func (b *Backend) RemoveByPattern(ctx context.Context, pattern string) error {
	_, err := b.execute(ctx, "remove-by-pattern", func(ctx context.Context) (any, error) {
		return nil, b.inner.RemoveByPattern(ctx, pattern)
	})
	return err
}

// GetMany implements cache.Backend.
func (b *Backend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	result, err := b.execute(ctx, "get-many", func(ctx context.Context) (any, error) {
		return b.inner.GetMany(ctx, keys)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string][]byte), nil
}

// SetMany implements cache.Backend.
func (b *Backend) SetMany(ctx context.Context, items map[string][]byte, opts cache.EntryOptions) error {
	_, err := b.execute(ctx, "set-many", func(ctx context.Context) (any, error) {
		return nil, b.inner.SetMany(ctx, items, opts)
	})
	return err
}

// Name implements cache.Backend.
func (b *Backend) Name() string {
	return b.inner.Name()
}

// Close implements cache.Backend.
func (b *Backend) Close() error {
	return b.inner.Close()
}

// State returns the breaker's current state, for the ops server.
func (b *Backend) State() metrics.CircuitState {
	return circuitState(b.cb.State())
}
