package cache

import (
	"context"
)

// Factory computes a value for GetOrSet when the key is absent.
// The returned bytes are stored and handed back to the caller.
type Factory func(ctx context.Context) ([]byte, error)

// Backend is the contract every cache implementation satisfies.
// Values are opaque serialized bytes; typed access goes through the
// generic helpers in typed.go which pair a Backend with a Codec.
//
// Semantics all implementations must honor:
//   - Get returns (nil, false, nil) on a true miss. A transport or
//     connection fault is reported as an error wrapping
//     ErrBackendUnavailable, never as a miss.
//   - Set overwrites silently and is idempotent.
//   - Remove of an absent key is not an error.
//   - Expired entries are never returned as hits.
//   - Context cancellation surfaces as ctx.Err(), distinct from
//     ErrBackendUnavailable, so callers can tell "caller gave up"
//     from "backend is broken".
type Backend interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given entry options.
	Set(ctx context.Context, key string, value []byte, opts EntryOptions) error

	// Remove deletes key. Removing an absent key succeeds.
	Remove(ctx context.Context, key string) error

	// Exists reports whether key holds an unexpired entry.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrSet returns the value under key, invoking factory to compute
	// and store it on a miss. Concurrent callers may each invoke the
	// factory; coalescing is not guaranteed.
	GetOrSet(ctx context.Context, key string, factory Factory, opts EntryOptions) ([]byte, error)

	// RemoveByPattern deletes every key matching the glob pattern.
	RemoveByPattern(ctx context.Context, pattern string) error

	// GetMany retrieves the values for keys. Absent keys are simply
	// missing from the result map.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMany stores all items with the same entry options. Atomicity
	// across keys is not guaranteed.
	SetMany(ctx context.Context, items map[string][]byte, opts EntryOptions) error

	// Name returns the identifier for this backend (e.g. "memory",
	// "redis"), used in logs and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Pinger is implemented by backends that can probe their transport.
// The ops server uses it for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
