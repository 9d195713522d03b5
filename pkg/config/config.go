// Package config loads the process-start configuration for the caching
// layer: distributed-backend connection settings, in-process bounds,
// the per-entity TTL table and the ops server address. Malformed
// configuration fails process start, never individual requests.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"cacheside/pkg/logging"

	"go.yaml.in/yaml/v2"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RedisConfig holds the distributed backend connection settings.
type RedisConfig struct {
	// Enabled selects whether the distributed backend is wired in.
	// When false, callers run on the in-process backend alone.
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	ClusterAddrs []string `yaml:"cluster_addrs"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	KeyPrefix    string   `yaml:"key_prefix"`
}

// MemoryConfig holds the in-process backend bounds.
type MemoryConfig struct {
	MaxEntries      int      `yaml:"max_entries"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// OpsConfig holds the operational HTTP server settings.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Config is the root configuration document.
type Config struct {
	Redis  RedisConfig    `yaml:"redis"`
	Memory MemoryConfig   `yaml:"memory"`
	Ops    OpsConfig      `yaml:"ops"`
	Log    logging.Config `yaml:"log"`

	// TTL maps entity kinds to their cache time-to-live. Kinds absent
	// from the table get the 15-minute global default.
	TTL map[string]Duration `yaml:"ttl"`

	// DefaultTTL overrides the global default when set.
	DefaultTTL Duration `yaml:"default_ttl"`
}

// Default returns the configuration used when no file is supplied:
// in-process caching only, ops server off.
func Default() Config {
	return Config{
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "cache:",
		},
		Memory: MemoryConfig{
			CleanupInterval: Duration(time.Minute),
		},
		Ops: OpsConfig{Address: ":8080"},
		Log: logging.DefaultConfig(),
	}
}

// Load reads and validates a YAML configuration file, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv returns the default configuration with environment overrides
// applied, for deployments that configure through the environment only.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("CACHE_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if pass := os.Getenv("CACHE_REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}
	if user := os.Getenv("CACHE_REDIS_USERNAME"); user != "" {
		c.Redis.Username = user
	}
	if db := os.Getenv("CACHE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}
	if addr := os.Getenv("CACHE_OPS_ADDR"); addr != "" {
		c.Ops.Address = addr
		c.Ops.Enabled = true
	}
}

// Validate rejects configurations that cannot produce a working layer.
func (c Config) Validate() error {
	if c.Redis.Enabled && c.Redis.Addr == "" && len(c.Redis.ClusterAddrs) == 0 {
		return fmt.Errorf("config: redis enabled but no address configured")
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return fmt.Errorf("config: redis db %d out of range 0-15", c.Redis.DB)
	}
	if len(c.Redis.ClusterAddrs) > 0 && c.Redis.DB != 0 {
		return fmt.Errorf("config: redis cluster mode supports only db 0")
	}
	if c.Memory.MaxEntries < 0 {
		return fmt.Errorf("config: memory max_entries must not be negative")
	}
	if c.Ops.Enabled && c.Ops.Address == "" {
		return fmt.Errorf("config: ops server enabled but no address configured")
	}
	for kind, ttl := range c.TTL {
		if ttl <= 0 {
			return fmt.Errorf("config: ttl for %q must be positive", kind)
		}
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("config: default_ttl must not be negative")
	}
	return nil
}

// TTLTable converts the YAML TTL map into the plain kind→duration
// table the TTL policy consumes.
func (c Config) TTLTable() map[string]time.Duration {
	table := make(map[string]time.Duration, len(c.TTL))
	for kind, ttl := range c.TTL {
		table[kind] = ttl.Std()
	}
	return table
}
