package cache

import (
	"sort"
	"strings"
	"time"
)

// DefaultTTL is the global fallback applied when no policy entry
// matches an entity kind.
const DefaultTTL = 15 * time.Minute

// TTLPolicy maps entity kinds to their default time-to-live. It is
// built once at process start from configuration and is read-only
// afterwards, so lookups need no locking.
//
// Lookup order: exact kind match, then the first hierarchy match (an
// entry whose kind is a prefix of the requested kind or vice versa,
// longest entry first), then DefaultTTL.
type TTLPolicy struct {
	entries    map[string]time.Duration
	ordered    []string // entry kinds, longest first, for hierarchy matches
	defaultTTL time.Duration
}

// NewTTLPolicy builds a policy from a kind→TTL table. Kinds are
// normalized the same way the key generator normalizes them, so
// "RoleEntity" and "role" configure the same entry. A nil or empty
// table yields a policy that always answers with DefaultTTL.
func NewTTLPolicy(table map[string]time.Duration) *TTLPolicy {
	return NewTTLPolicyWithDefault(table, DefaultTTL)
}

// NewTTLPolicyWithDefault is NewTTLPolicy with an explicit global
// fallback instead of DefaultTTL.
func NewTTLPolicyWithDefault(table map[string]time.Duration, defaultTTL time.Duration) *TTLPolicy {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	entries := make(map[string]time.Duration, len(table))
	for kind, ttl := range table {
		if ttl <= 0 {
			continue
		}
		entries[Kind(kind)] = ttl
	}

	ordered := make([]string, 0, len(entries))
	for kind := range entries {
		ordered = append(ordered, kind)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	return &TTLPolicy{
		entries:    entries,
		ordered:    ordered,
		defaultTTL: defaultTTL,
	}
}

// TTLFor resolves the time-to-live for an entity kind.
func (p *TTLPolicy) TTLFor(kind string) time.Duration {
	kind = Kind(kind)

	if ttl, ok := p.entries[kind]; ok {
		return ttl
	}

	// Hierarchy match: a configured base kind covers its derived kinds
	// and vice versa ("role" matches "adminrole" requests).
	for _, entry := range p.ordered {
		if strings.HasPrefix(kind, entry) || strings.HasPrefix(entry, kind) ||
			strings.HasSuffix(kind, entry) || strings.HasSuffix(entry, kind) {
			return p.entries[entry]
		}
	}

	return p.defaultTTL
}

// OptionsFor returns entry options expiring the configured TTL after
// the write, with normal priority.
func (p *TTLPolicy) OptionsFor(kind string) EntryOptions {
	return WithTTL(p.TTLFor(kind))
}

// OptionsWithTTL returns entry options using the caller-supplied TTL,
// bypassing the table. Non-positive values fall back to the global
// default.
func (p *TTLPolicy) OptionsWithTTL(ttl time.Duration) EntryOptions {
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	return WithTTL(ttl)
}

// Default returns the policy's global fallback TTL.
func (p *TTLPolicy) Default() time.Duration {
	return p.defaultTTL
}

// Len returns the number of configured entries.
func (p *TTLPolicy) Len() int {
	return len(p.entries)
}
