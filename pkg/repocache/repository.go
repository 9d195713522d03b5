// Package repocache decorates persistence repositories with cache-aside
// reads and write-through invalidation. A decorated repository exposes
// exactly the contract of the wrapped one; callers cannot tell whether
// caching is present, except through latency and bounded staleness.
package repocache

import "context"

// Identifiable is the constraint cached entities satisfy: the decorator
// needs the id to build and invalidate entity keys.
type Identifiable interface {
	EntityID() string
}

// Repository is the persistence contract the decorator wraps and
// re-exposes. Implementations report a missing entity as found=false
// with a nil error; errors mean the operation itself failed.
type Repository[T Identifiable] interface {
	// Get returns the entity with the given id.
	Get(ctx context.Context, id string) (entity T, found bool, err error)

	// List returns all entities.
	List(ctx context.Context) ([]T, error)

	// Add persists a new entity and returns it as stored.
	Add(ctx context.Context, entity T) (T, error)

	// Update persists changes to an existing entity.
	Update(ctx context.Context, entity T) error

	// Delete removes the entity with the given id.
	Delete(ctx context.Context, id string) error
}

// NamedRepository is a Repository whose entities are also addressable
// by a unique name.
type NamedRepository[T Identifiable] interface {
	Repository[T]

	// GetByName returns the entity with the given name.
	GetByName(ctx context.Context, name string) (entity T, found bool, err error)
}
