package repocache

import (
	"context"
	"time"

	"cacheside/pkg/cache"
)

// NamedCachedRepository decorates a NamedRepository. The generic
// decorator cannot know about methods beyond the common contract, so
// repositories with a name lookup get this specialized variant: the
// full contract via the embedded decorator plus a name-keyed cache-aside
// read, all sharing the same collaborators.
type NamedCachedRepository[T Identifiable] struct {
	*CachedRepository[T]
	base NamedRepository[T]
}

var _ NamedRepository[Identifiable] = (*NamedCachedRepository[Identifiable])(nil)

// NewNamed decorates a NamedRepository.
func NewNamed[T Identifiable](base NamedRepository[T], backend cache.Backend, policy *cache.TTLPolicy, opts ...Option) *NamedCachedRepository[T] {
	return &NamedCachedRepository[T]{
		CachedRepository: New[T](base, backend, policy, opts...),
		base:             base,
	}
}

// GetByName implements NamedRepository with the same cache-aside
// pattern as Get, keyed by the normalized name.
func (r *NamedCachedRepository[T]) GetByName(ctx context.Context, name string) (T, bool, error) {
	var zero T
	key := cache.NameKey(r.kind, name)
	start := time.Now()

	cached, hit, err := r.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	r.metrics.RecordRepositoryGet(r.kind, hit, time.Since(start))
	if hit {
		return cached, true, nil
	}

	entity, found, err := r.base.GetByName(ctx, name)
	if err != nil || !found {
		return entity, found, err
	}

	if err := r.populate(ctx, key, entity); err != nil {
		return zero, false, err
	}
	return entity, true, nil
}
