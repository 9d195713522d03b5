// Package mock provides a test double for cache.Backend with
// injectable behavior and atomic call counters.
package mock

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"

	"cacheside/pkg/cache"
)

// Backend is a mock cache.Backend. Set the *Func fields to inject
// behavior; unset operations act on the built-in store, which behaves
// like a simple always-fresh cache.
type Backend struct {
	GetFunc             func(ctx context.Context, key string) ([]byte, bool, error)
	SetFunc             func(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error
	RemoveFunc          func(ctx context.Context, key string) error
	ExistsFunc          func(ctx context.Context, key string) (bool, error)
	RemoveByPatternFunc func(ctx context.Context, pattern string) error

	name string

	mu    sync.Mutex
	store map[string][]byte

	getCalls    int64
	setCalls    int64
	removeCalls int64
	closeCalls  int64
}

var _ cache.Backend = (*Backend)(nil)

// New creates a mock backend with an empty store.
func New(name string) *Backend {
	return &Backend{name: name, store: make(map[string][]byte)}
}

// Unavailable creates a mock backend whose every operation fails with
// ErrBackendUnavailable, simulating a dead transport.
func Unavailable(name string) *Backend {
	b := New(name)
	fail := func() error { return fmt.Errorf("%w: %s is down", cache.ErrBackendUnavailable, name) }
	b.GetFunc = func(context.Context, string) ([]byte, bool, error) { return nil, false, fail() }
	b.SetFunc = func(context.Context, string, []byte, cache.EntryOptions) error { return fail() }
	b.RemoveFunc = func(context.Context, string) error { return fail() }
	b.ExistsFunc = func(context.Context, string) (bool, error) { return false, fail() }
	b.RemoveByPatternFunc = func(context.Context, string) error { return fail() }
	return b
}

// Get implements cache.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	atomic.AddInt64(&b.getCalls, 1)
	if b.GetFunc != nil {
		return b.GetFunc(ctx, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.store[key]
	return data, ok, nil
}

// Set implements cache.Backend.
func (b *Backend) Set(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error {
	atomic.AddInt64(&b.setCalls, 1)
	if b.SetFunc != nil {
		return b.SetFunc(ctx, key, value, opts)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store[key] = value
	return nil
}

// Remove implements cache.Backend.
func (b *Backend) Remove(ctx context.Context, key string) error {
	atomic.AddInt64(&b.removeCalls, 1)
	if b.RemoveFunc != nil {
		return b.RemoveFunc(ctx, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.store, key)
	return nil
}

// Exists implements cache.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	if b.ExistsFunc != nil {
		return b.ExistsFunc(ctx, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.store[key]
	return ok, nil
}

// GetOrSet implements cache.Backend.
func (b *Backend) GetOrSet(ctx context.Context, key string, factory cache.Factory, opts cache.EntryOptions) ([]byte, error) {
	if data, ok, err := b.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}
	data, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Set(ctx, key, data, opts); err != nil {
		return nil, err
	}
	return data, nil
}

// RemoveByPattern implements cache.Backend with glob matching over the
// built-in store.
func (b *Backend) RemoveByPattern(ctx context.Context, pattern string) error {
	if b.RemoveByPatternFunc != nil {
		return b.RemoveByPatternFunc(ctx, pattern)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(b.store, key)
		}
	}
	return nil
}

// GetMany implements cache.Backend.
func (b *Backend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, ok, err := b.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = data
		}
	}
	return out, nil
}

// SetMany implements cache.Backend.
func (b *Backend) SetMany(ctx context.Context, items map[string][]byte, opts cache.EntryOptions) error {
	for key, value := range items {
		if err := b.Set(ctx, key, value, opts); err != nil {
			return err
		}
	}
	return nil
}

// Name implements cache.Backend.
func (b *Backend) Name() string { return b.name }

// Close implements cache.Backend.
func (b *Backend) Close() error {
	atomic.AddInt64(&b.closeCalls, 1)
	return nil
}

// Contains reports whether the built-in store holds key.
func (b *Backend) Contains(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.store[key]
	return ok
}

// Seed stores a value directly in the built-in store.
func (b *Backend) Seed(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store[key] = value
}

// GetCalls returns the number of Get invocations.
func (b *Backend) GetCalls() int { return int(atomic.LoadInt64(&b.getCalls)) }

// SetCalls returns the number of Set invocations.
func (b *Backend) SetCalls() int { return int(atomic.LoadInt64(&b.setCalls)) }

// RemoveCalls returns the number of Remove invocations.
func (b *Backend) RemoveCalls() int { return int(atomic.LoadInt64(&b.removeCalls)) }

// CloseCalls returns the number of Close invocations.
func (b *Backend) CloseCalls() int { return int(atomic.LoadInt64(&b.closeCalls)) }
