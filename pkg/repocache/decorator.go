package repocache

import (
	"context"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/logging"
	"cacheside/pkg/metrics"

	"go.uber.org/zap"
)

// CachedRepository decorates a Repository with cache-aside reads and
// write-through invalidation.
//
// Reads check the cache first and fall back to the wrapped repository
// on a miss, populating the cache with the TTL policy's options for the
// entity kind. Absent entities and empty lists are never cached, so a
// stale negative can never mask a just-created entity.
//
// Writes go to the wrapped repository first; only after the write
// succeeds are the entity key and the list key removed. Between the
// write committing and the removal completing, a concurrent reader may
// observe the previous cached value. That staleness window is bounded
// by invalidation latency and accepted: the cache is never the source
// of truth.
//
// Backend faults on the read path degrade to a direct repository call;
// faults on the invalidation path are logged and swallowed. Repository
// errors always propagate untouched.
type CachedRepository[T Identifiable] struct {
	base    Repository[T]
	backend cache.Backend
	policy  *cache.TTLPolicy
	codec   cache.Codec
	kind    string
	logger  *logging.Logger
	metrics metrics.Collector
}

var _ Repository[Identifiable] = (*CachedRepository[Identifiable])(nil)

// Option customizes a decorator.
type Option func(*options)

type options struct {
	codec   cache.Codec
	kind    string
	logger  *logging.Logger
	metrics metrics.Collector
}

// WithCodec overrides the value codec (default: cache.DefaultCodec).
func WithCodec(c cache.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithKind overrides the entity kind derived from T.
func WithKind(kind string) Option {
	return func(o *options) { o.kind = cache.Kind(kind) }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// New decorates base with caching through backend, using policy for
// entry TTLs. The entity kind is derived from T's type name.
func New[T Identifiable](base Repository[T], backend cache.Backend, policy *cache.TTLPolicy, opts ...Option) *CachedRepository[T] {
	o := applyOptions[T](opts)
	return &CachedRepository[T]{
		base:    base,
		backend: backend,
		policy:  policy,
		codec:   o.codec,
		kind:    o.kind,
		logger:  o.logger.Named(o.kind),
		metrics: o.metrics,
	}
}

func applyOptions[T Identifiable](opts []Option) options {
	o := options{
		codec:   cache.DefaultCodec,
		kind:    cache.KindOf[T](),
		logger:  logging.Global().Named("repocache"),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Kind returns the entity kind this decorator caches under.
func (r *CachedRepository[T]) Kind() string {
	return r.kind
}

// Get implements Repository. On a cache hit the wrapped repository is
// not touched.
func (r *CachedRepository[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	key := cache.EntityKey(r.kind, id)
	start := time.Now()

	cached, hit, err := r.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	r.metrics.RecordRepositoryGet(r.kind, hit, time.Since(start))
	if hit {
		return cached, true, nil
	}

	entity, found, err := r.base.Get(ctx, id)
	if err != nil || !found {
		return entity, found, err
	}

	if err := r.populate(ctx, key, entity); err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

// List implements Repository. Non-empty results are cached under the
// list key; empty results are not.
func (r *CachedRepository[T]) List(ctx context.Context) ([]T, error) {
	key := cache.ListKey(r.kind)
	start := time.Now()

	if data, ok, err := r.backend.Get(ctx, key); err != nil {
		if cache.IsCancellation(err) {
			return nil, err
		}
		r.logger.Warn("cache read failed, falling through to repository",
			zap.String("key", key), zap.Error(err))
	} else if ok {
		var entities []T
		if err := r.codec.Unmarshal(data, &entities); err != nil {
			return nil, err
		}
		r.metrics.RecordRepositoryGet(r.kind, true, time.Since(start))
		return entities, nil
	}
	r.metrics.RecordRepositoryGet(r.kind, false, time.Since(start))

	entities, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return entities, nil
	}

	if err := r.populate(ctx, key, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Add implements Repository. The entity key removal is defensive: no
// positive entry should exist for a new id, but a stale one from a
// previous incarnation of the id must not survive the insert.
func (r *CachedRepository[T]) Add(ctx context.Context, entity T) (T, error) {
	created, err := r.base.Add(ctx, entity)
	if err != nil {
		return created, err
	}
	r.invalidate(ctx, cache.EntityKey(r.kind, created.EntityID()), cache.ListKey(r.kind))
	return created, nil
}

// Update implements Repository.
func (r *CachedRepository[T]) Update(ctx context.Context, entity T) error {
	if err := r.base.Update(ctx, entity); err != nil {
		return err
	}
	r.invalidate(ctx, cache.EntityKey(r.kind, entity.EntityID()), cache.ListKey(r.kind))
	return nil
}

// Delete implements Repository.
func (r *CachedRepository[T]) Delete(ctx context.Context, id string) error {
	if err := r.base.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, cache.EntityKey(r.kind, id), cache.ListKey(r.kind))
	return nil
}

// InvalidateAll removes every entity entry of this kind plus the list
// key. Bulk escape hatch for out-of-band data changes.
func (r *CachedRepository[T]) InvalidateAll(ctx context.Context) {
	if err := r.backend.RemoveByPattern(ctx, cache.PatternKey(r.kind)); err != nil && !cache.IsCancellation(err) {
		r.logger.Warn("pattern invalidation failed",
			zap.String("pattern", cache.PatternKey(r.kind)), zap.Error(err))
	}
	r.invalidate(ctx, cache.ListKey(r.kind))
}

// lookup reads and decodes one entity from the cache. A backend fault
// is logged and reported as a miss; a decode failure propagates.
func (r *CachedRepository[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, ok, err := r.backend.Get(ctx, key)
	if err != nil {
		if cache.IsCancellation(err) {
			return zero, false, err
		}
		r.logger.Warn("cache read failed, falling through to repository",
			zap.String("key", key), zap.Error(err))
		return zero, false, nil
	}
	if !ok {
		return zero, false, nil
	}

	var entity T
	if err := r.codec.Unmarshal(data, &entity); err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

// populate encodes value and writes it with the policy's TTL for the
// kind. Encoding failures propagate; backend faults are logged and
// swallowed because the caller already holds the authoritative value.
func (r *CachedRepository[T]) populate(ctx context.Context, key string, value any) error {
	data, err := r.codec.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.backend.Set(ctx, key, data, r.policy.OptionsFor(r.kind)); err != nil {
		if cache.IsCancellation(err) {
			return err
		}
		r.logger.Warn("cache populate failed",
			zap.String("key", key), zap.Error(err))
	}
	return nil
}

// invalidate removes keys after a successful write. Failures are logged
// and swallowed: the repository write already committed, and the entry
// will still age out via TTL.
func (r *CachedRepository[T]) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := r.backend.Remove(ctx, key); err != nil && !cache.IsCancellation(err) {
			r.logger.Warn("cache invalidation failed; entry expires via TTL",
				zap.String("key", key), zap.Error(err))
		}
	}
	r.metrics.RecordInvalidation(r.kind)
}
