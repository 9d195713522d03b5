// Package composite layers a primary and a fallback cache backend so
// that an outage of one degrades service instead of failing it. Reads
// prefer the primary and fall through to the fallback on faults and on
// clean misses; writes go to both concurrently with faults logged and
// swallowed. The source of truth is never the cache, so swallowing
// write faults costs hit rate, not correctness.
package composite

import (
	"context"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/logging"
	"cacheside/pkg/metrics"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Composite wraps a primary and a fallback Backend. In the usual
// deployment the primary is the distributed backend and the fallback
// the in-process one, so a distributed outage degrades to local-only
// caching.
type Composite struct {
	primary  cache.Backend
	fallback cache.Backend
	logger   *logging.Logger
	metrics  metrics.Collector
}

var _ cache.Backend = (*Composite)(nil)

// Option customizes a Composite.
type Option func(*Composite)

// WithLogger sets the logger for swallowed-fault reporting.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Composite) { c.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Composite) { c.metrics = m }
}

// New builds a composite over primary and fallback.
func New(primary, fallback cache.Backend, opts ...Option) *Composite {
	c := &Composite{
		primary:  primary,
		fallback: fallback,
		logger:   logging.Global().Named("composite"),
		metrics:  metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get tries the primary first. A primary fault is logged and recovered
// through the fallback; so is a clean primary miss, which maximizes hit
// probability across backend outages. The error surfaces only when
// every backend faulted. Cancellation aborts immediately.
func (c *Composite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()

	data, ok, primaryErr := c.primary.Get(ctx, key)
	if primaryErr == nil && ok {
		c.metrics.RecordGet(c.Name(), true, time.Since(start))
		return data, true, nil
	}
	if primaryErr != nil {
		if cache.IsCancellation(primaryErr) {
			return nil, false, primaryErr
		}
		c.logger.Warn("primary get failed, trying fallback",
			zap.String("backend", c.primary.Name()),
			zap.String("key", key),
			zap.Error(primaryErr),
		)
		c.metrics.RecordFallback(c.primary.Name(), "get")
	}

	data, ok, fallbackErr := c.fallback.Get(ctx, key)
	if fallbackErr != nil {
		if cache.IsCancellation(fallbackErr) {
			return nil, false, fallbackErr
		}
		if primaryErr != nil {
			// Every backend faulted; nothing left to degrade to.
			return nil, false, fallbackErr
		}
		c.logger.Error("fallback get failed after clean primary miss",
			zap.String("backend", c.fallback.Name()),
			zap.String("key", key),
			zap.Error(fallbackErr),
		)
		c.metrics.RecordGet(c.Name(), false, time.Since(start))
		return nil, false, nil
	}

	c.metrics.RecordGet(c.Name(), ok, time.Since(start))
	return data, ok, nil
}

// Set writes to both backends concurrently and waits for the slower
// one. Faults are logged and swallowed: a set never fails the caller
// because of cache trouble. Only cancellation is reported back.
func (c *Composite) Set(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error {
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error {
		c.swallow("set", c.primary, c.primary.Set(ctx, key, value, opts))
		return nil
	})
	g.Go(func() error {
		c.swallow("set", c.fallback, c.fallback.Set(ctx, key, value, opts))
		return nil
	})
	_ = g.Wait()

	c.metrics.RecordSet(c.Name(), true, time.Since(start))
	return ctx.Err()
}

// Remove deletes the key from both backends concurrently. Faults are
// logged and swallowed.
func (c *Composite) Remove(ctx context.Context, key string) error {
	var g errgroup.Group
	g.Go(func() error {
		c.swallow("remove", c.primary, c.primary.Remove(ctx, key))
		return nil
	})
	g.Go(func() error {
		c.swallow("remove", c.fallback, c.fallback.Remove(ctx, key))
		return nil
	})
	_ = g.Wait()
	return ctx.Err()
}

// Exists reports true when either backend holds the key. A primary
// fault falls through to the fallback; the error surfaces only when
// both faulted.
func (c *Composite) Exists(ctx context.Context, key string) (bool, error) {
	ok, primaryErr := c.primary.Exists(ctx, key)
	if primaryErr == nil && ok {
		return true, nil
	}
	if primaryErr != nil {
		if cache.IsCancellation(primaryErr) {
			return false, primaryErr
		}
		c.logger.Warn("primary exists failed, trying fallback",
			zap.String("backend", c.primary.Name()),
			zap.String("key", key),
			zap.Error(primaryErr),
		)
		c.metrics.RecordFallback(c.primary.Name(), "exists")
	}

	ok, fallbackErr := c.fallback.Exists(ctx, key)
	if fallbackErr != nil {
		if primaryErr != nil || cache.IsCancellation(fallbackErr) {
			return false, fallbackErr
		}
		c.logger.Error("fallback exists failed",
			zap.String("backend", c.fallback.Name()),
			zap.String("key", key),
			zap.Error(fallbackErr),
		)
		return false, nil
	}
	return ok, nil
}

// GetOrSet reads through the composite's own Get and, on a genuine
// miss, invokes factory once and writes through the composite's own
// Set, populating both backends. Factory errors propagate untouched.
func (c *Composite) GetOrSet(ctx context.Context, key string, factory cache.Factory, opts cache.EntryOptions) ([]byte, error) {
	data, ok, err := c.Get(ctx, key)
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
	if err := c.Set(ctx, key, data, opts); err != nil {
		return nil, err
	}
	return data, nil
}

// RemoveByPattern runs the pattern removal against both backends
// concurrently. Faults are logged and swallowed.
func (c *Composite) RemoveByPattern(ctx context.Context, pattern string) error {
	var g errgroup.Group
	g.Go(func() error {
		c.swallow("remove-by-pattern", c.primary, c.primary.RemoveByPattern(ctx, pattern))
		return nil
	})
	g.Go(func() error {
		c.swallow("remove-by-pattern", c.fallback, c.fallback.RemoveByPattern(ctx, pattern))
		return nil
	})
	_ = g.Wait()
	return ctx.Err()
}

// GetMany asks the primary for all keys and the fallback for whatever
// is still missing, merging the results. Per-key semantics match Get.
func (c *Composite) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out, primaryErr := c.primary.GetMany(ctx, keys)
	if primaryErr != nil {
		if cache.IsCancellation(primaryErr) {
			return nil, primaryErr
		}
		c.logger.Warn("primary get-many failed, trying fallback",
			zap.String("backend", c.primary.Name()),
			zap.Int("keys", len(keys)),
			zap.Error(primaryErr),
		)
		c.metrics.RecordFallback(c.primary.Name(), "get-many")
		out = map[string][]byte{}
	}

	missing := keys[:0:0]
	for _, key := range keys {
		if _, ok := out[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rest, fallbackErr := c.fallback.GetMany(ctx, missing)
	if fallbackErr != nil {
		if primaryErr != nil || cache.IsCancellation(fallbackErr) {
			return nil, fallbackErr
		}
		c.logger.Error("fallback get-many failed",
			zap.String("backend", c.fallback.Name()),
			zap.Error(fallbackErr),
		)
		return out, nil
	}
	for key, data := range rest {
		out[key] = data
	}
	return out, nil
}

// SetMany writes all items to both backends concurrently. Faults are
// logged and swallowed.
func (c *Composite) SetMany(ctx context.Context, items map[string][]byte, opts cache.EntryOptions) error {
	var g errgroup.Group
	g.Go(func() error {
		c.swallow("set-many", c.primary, c.primary.SetMany(ctx, items, opts))
		return nil
	})
	g.Go(func() error {
		c.swallow("set-many", c.fallback, c.fallback.SetMany(ctx, items, opts))
		return nil
	})
	_ = g.Wait()
	return ctx.Err()
}

// Name implements cache.Backend.
func (c *Composite) Name() string {
	return "composite(" + c.primary.Name() + "," + c.fallback.Name() + ")"
}

// Close closes both backends, reporting every failure.
func (c *Composite) Close() error {
	return multierr.Append(c.primary.Close(), c.fallback.Close())
}

// swallow logs a backend fault without letting it reach the caller.
func (c *Composite) swallow(op string, b cache.Backend, err error) {
	if err == nil || cache.IsCancellation(err) {
		return
	}
	level := c.logger.Warn
	if b == c.fallback {
		// Losing the last line of cache defense is worth an error entry.
		level = c.logger.Error
	}
	level("cache write-path fault swallowed",
		zap.String("op", op),
		zap.String("backend", b.Name()),
		zap.Error(err),
	)
	c.metrics.RecordSwallowedFault(b.Name(), op)
}
