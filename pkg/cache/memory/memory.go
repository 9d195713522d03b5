// Package memory implements the in-process cache backend: a
// mutex-guarded map with TTL enforcement, sliding expiration and
// priority-aware LRU eviction. All operations run to completion inline;
// only the expiry janitor uses a goroutine.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"cacheside/pkg/cache"
)

// Config holds configuration for the in-process backend.
type Config struct {
	// Name is the backend identifier used in logs and metrics.
	Name string

	// MaxEntries bounds the number of entries (0 = unbounded). When the
	// bound is hit, the lowest-priority least-recently-used entry is
	// evicted. PriorityNeverEvict entries are skipped.
	MaxEntries int

	// DefaultTTL applies when a write carries no expiration at all.
	// Zero means such entries do not expire.
	DefaultTTL time.Duration

	// CleanupInterval is how often the janitor sweeps expired entries.
	CleanupInterval time.Duration
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Name:            "memory",
		CleanupInterval: time.Minute,
	}
}

type entry struct {
	data       []byte
	expiresAt  time.Time // zero = no forced expiry
	sliding    time.Duration
	priority   cache.Priority
	accessedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is the in-process Backend. The zero value is not usable; use New.
// Storage is process-wide state living for the process lifetime, but the
// instance is an explicit dependency so tests can run an isolated one.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config

	janitor *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

var _ cache.Backend = (*Cache)(nil)

// New creates an in-process backend and starts its expiry janitor.
func New(config Config) *Cache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		entries: make(map[string]*entry),
		config:  config,
		janitor: time.NewTicker(config.CleanupInterval),
		stop:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweep()

	return c
}

// Get implements cache.Backend. A hit on a sliding entry restarts its
// expiration window.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	now := time.Now()

	// One write lock covers lookup, expiry check and the sliding touch:
	// the touch mutates expiresAt, so the expiry check of a concurrent
	// reader must not run outside the lock.
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		delete(c.entries, key)
		return nil, false, nil
	}

	e.accessedAt = now
	if e.sliding > 0 {
		e.expiresAt = now.Add(e.sliding)
	}
	return e.data, true, nil
}

// Set implements cache.Backend.
func (c *Cache) Set(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	expiresAt, hasExpiry := opts.ExpiresAt(now)
	if !hasExpiry && c.config.DefaultTTL > 0 {
		expiresAt = now.Add(c.config.DefaultTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLocked(now)
		}
	}

	c.entries[key] = &entry{
		data:       value,
		expiresAt:  expiresAt,
		sliding:    opts.SlidingExpiration,
		priority:   opts.Priority,
		accessedAt: now,
	}
	return nil
}

// Remove implements cache.Backend. Removing an absent key succeeds.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Exists implements cache.Backend.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return ok && !e.expired(now), nil
}

// GetOrSet implements cache.Backend. Concurrent callers for the same
// missing key may each invoke factory; last write wins. That is the
// accepted policy for the in-process backend.
func (c *Cache) GetOrSet(ctx context.Context, key string, factory cache.Factory, opts cache.EntryOptions) ([]byte, error) {
	if data, ok, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	data, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, data, opts); err != nil {
		return nil, err
	}
	return data, nil
}

// RemoveByPattern implements cache.Backend with a full map scan and
// glob matching. The map is small enough that a scan beats maintaining
// a key index.
func (c *Cache) RemoveByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return cache.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err != nil {
			return cache.ErrInvalidKey
		} else if ok {
			delete(c.entries, key)
		}
	}
	return nil
}

// GetMany implements cache.Backend.
func (c *Cache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, ok, err := c.Get(ctx, key)
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
func (c *Cache) SetMany(ctx context.Context, items map[string][]byte, opts cache.EntryOptions) error {
	for key, value := range items {
		if err := c.Set(ctx, key, value, opts); err != nil {
			return err
		}
	}
	return nil
}

// Name implements cache.Backend.
func (c *Cache) Name() string {
	return c.config.Name
}

// Close stops the janitor and drops all entries.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.janitor.Stop()
	close(c.stop)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

// Len returns the current number of entries, expired ones included
// until the janitor sweeps them.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked removes the least valuable entry: lowest priority first,
// least recently used within a priority. Never-evict entries survive.
// Caller holds the write lock.
func (c *Cache) evictLocked(now time.Time) {
	// Expired entries are free wins.
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			return
		}
	}

	var victim string
	var victimPrio cache.Priority
	var victimAccess time.Time

	for key, e := range c.entries {
		if e.priority == cache.PriorityNeverEvict {
			continue
		}
		if victim == "" || e.priority < victimPrio ||
			(e.priority == victimPrio && e.accessedAt.Before(victimAccess)) {
			victim = key
			victimPrio = e.priority
			victimAccess = e.accessedAt
		}
	}

	if victim != "" {
		delete(c.entries, victim)
	}
}

func (c *Cache) sweep() {
	defer c.wg.Done()
	for {
		select {
		case <-c.janitor.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
