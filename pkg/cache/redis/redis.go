// Package redis implements the distributed cache backend on top of
// rueidis. Expiry is enforced server-side; pattern removal enumerates
// the keyspace per node so cluster deployments are covered.
package redis

import (
	"context"
	"fmt"
	"time"

	"cacheside/pkg/cache"

	"github.com/redis/rueidis"
	"go.uber.org/multierr"
)

// Config holds the connection settings for the distributed backend.
// The connection is established once at process start and shared by all
// callers; a bad address fails construction, not individual requests.
type Config struct {
	// Name is the backend identifier used in logs and metrics.
	Name string

	// Addr is the server address for single-node mode, e.g. "localhost:6379".
	Addr string

	// ClusterAddrs enables cluster mode when non-empty.
	ClusterAddrs []string

	Username string
	Password string

	// DB selects the logical database. Cluster mode supports only 0.
	DB int

	// KeyPrefix namespaces every key this backend touches.
	KeyPrefix string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// ScanCount is the COUNT hint for pattern-removal SCAN iterations.
	ScanCount int64
}

// DefaultConfig returns the settings for a local single-node server.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "cache:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		ScanCount:    200,
	}
}

// Cache is the distributed Backend.
type Cache struct {
	client rueidis.Client
	config Config
}

var _ cache.Backend = (*Cache)(nil)
var _ cache.Pinger = (*Cache)(nil)

// New connects to the server and verifies the connection with a ping.
func New(config Config) (*Cache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 200
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no address configured")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %v: %w", initAddress, err)
	}

	return &Cache{client: client, config: config}, nil
}

// Get implements cache.Backend.
func (r *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, false, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, cache.Unavailable(r.config.Name, "get", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, false, cache.Unavailable(r.config.Name, "get", err)
	}
	return data, true, nil
}

// Set implements cache.Backend. Sliding expiration degrades to a
// relative TTL: the server cannot track per-entry access windows.
func (r *Cache) Set(ctx context.Context, key string, value []byte, opts cache.EntryOptions) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	var cmd rueidis.Completed
	if ttl, ok := opts.TTL(time.Now()); ok {
		cmd = r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Px(ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Build()
	}

	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return cache.Unavailable(r.config.Name, "set", err)
	}
	return nil
}

// Remove implements cache.Backend.
func (r *Cache) Remove(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return cache.Unavailable(r.config.Name, "remove", err)
	}
	return nil
}

// Exists implements cache.Backend.
func (r *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return false, err
	}

	resp := r.client.Do(ctx, r.client.B().Exists().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		return false, cache.Unavailable(r.config.Name, "exists", err)
	}
	count, err := resp.AsInt64()
	if err != nil {
		return false, cache.Unavailable(r.config.Name, "exists", err)
	}
	return count > 0, nil
}

// GetOrSet implements cache.Backend. The factory runs at most once per
// caller; single-key atomicity for the final write comes from the server.
func (r *Cache) GetOrSet(ctx context.Context, key string, factory cache.Factory, opts cache.EntryOptions) ([]byte, error) {
	if data, ok, err := r.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	data, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Set(ctx, key, data, opts); err != nil {
		return nil, err
	}
	return data, nil
}

// RemoveByPattern implements cache.Backend. Every node is scanned with
// cursor iteration and matches are deleted in batches, so a cluster's
// whole keyspace is covered without KEYS blocking the server.
func (r *Cache) RemoveByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return cache.ErrInvalidKey
	}

	fullPattern := r.config.KeyPrefix + pattern

	var errs error
	for addr, node := range r.client.Nodes() {
		if err := r.scanAndDelete(ctx, node, fullPattern); err != nil {
			if cache.IsCancellation(err) {
				return err
			}
			errs = multierr.Append(errs, fmt.Errorf("node %s: %w", addr, err))
		}
	}
	if errs != nil {
		return cache.Unavailable(r.config.Name, "remove-by-pattern", errs)
	}
	return nil
}

func (r *Cache) scanAndDelete(ctx context.Context, node rueidis.Client, pattern string) error {
	var cursor uint64
	for {
		resp := node.Do(ctx, node.B().Scan().Cursor(cursor).Match(pattern).Count(r.config.ScanCount).Build())
		if err := resp.Error(); err != nil {
			return err
		}
		scan, err := resp.AsScanEntry()
		if err != nil {
			return err
		}

		if len(scan.Elements) > 0 {
			if err := node.Do(ctx, node.B().Del().Key(scan.Elements...).Build()).Error(); err != nil {
				return err
			}
		}

		cursor = scan.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// GetMany implements cache.Backend using a pipelined multi-get.
func (r *Cache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		if err := cache.ValidateKey(key); err != nil {
			return nil, err
		}
		cmds[i] = r.client.B().Get().Key(r.key(key)).Build()
	}

	out := make(map[string][]byte, len(keys))
	var errs error
	for i, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			if cache.IsCancellation(err) {
				return nil, err
			}
			errs = multierr.Append(errs, fmt.Errorf("key %s: %w", keys[i], err))
			continue
		}
		data, err := resp.AsBytes()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("key %s: %w", keys[i], err))
			continue
		}
		out[keys[i]] = data
	}

	if errs != nil {
		return out, cache.Unavailable(r.config.Name, "get-many", errs)
	}
	return out, nil
}

// SetMany implements cache.Backend using a pipelined multi-set.
// Atomicity across keys is not guaranteed.
func (r *Cache) SetMany(ctx context.Context, items map[string][]byte, opts cache.EntryOptions) error {
	if len(items) == 0 {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	ttl, hasTTL := opts.TTL(time.Now())

	cmds := make([]rueidis.Completed, 0, len(items))
	keys := make([]string, 0, len(items))
	for key, value := range items {
		if err := cache.ValidateKey(key); err != nil {
			return err
		}
		if value == nil {
			return cache.ErrInvalidValue
		}
		keys = append(keys, key)
		if hasTTL {
			cmds = append(cmds, r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Px(ttl).Build())
		} else {
			cmds = append(cmds, r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Build())
		}
	}

	var errs error
	for i, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			if cache.IsCancellation(err) {
				return err
			}
			errs = multierr.Append(errs, fmt.Errorf("key %s: %w", keys[i], err))
		}
	}
	if errs != nil {
		return cache.Unavailable(r.config.Name, "set-many", errs)
	}
	return nil
}

// Ping probes the server, for health checks.
func (r *Cache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return cache.Unavailable(r.config.Name, "ping", err)
	}
	return nil
}

// Name implements cache.Backend.
func (r *Cache) Name() string {
	return r.config.Name
}

// Close releases the client connection.
func (r *Cache) Close() error {
	r.client.Close()
	return nil
}

func (r *Cache) key(key string) string {
	return r.config.KeyPrefix + key
}
