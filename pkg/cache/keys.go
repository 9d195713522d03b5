package cache

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Cache keys have the form <kind>:<entity-kind>:<discriminator> where
// kind is one of "entity", "list" or "name". The same tuple always
// yields the same key, and different entity kinds never collide because
// the entity kind is a dedicated segment.

// KeySeparator joins the segments of a cache key.
const KeySeparator = ":"

// MaxKeyLength is the longest key backends accept. Discriminators that
// would push a key over the limit are collapsed to an xxhash digest.
const MaxKeyLength = 250

const (
	entityKeyPrefix = "entity"
	listKeyPrefix   = "list"
	nameKeyPrefix   = "name"

	// emptyNameToken stands in for blank or whitespace-only names so
	// they still produce a valid, stable key.
	emptyNameToken = "empty"
)

// EntityKey returns the cache key addressing a single entity by id.
// Dashes in the id are stripped so "role-42" and a separator-free form
// of the same id address the same entry.
func EntityKey(kind, id string) string {
	return buildKey(entityKeyPrefix, Kind(kind), strings.ReplaceAll(id, "-", ""))
}

// ListKey returns the cache key addressing the full collection of an
// entity kind. It has no discriminator segment.
func ListKey(kind string) string {
	return listKeyPrefix + KeySeparator + Kind(kind)
}

// NameKey returns the cache key addressing an entity by its name.
func NameKey(kind, name string) string {
	return buildKey(nameKeyPrefix, Kind(kind), normalizeName(name))
}

// PatternKey returns the glob matching every entity key of a kind,
// for bulk invalidation via RemoveByPattern.
func PatternKey(kind string) string {
	return entityKeyPrefix + KeySeparator + Kind(kind) + KeySeparator + "*"
}

// Kind normalizes an entity kind: a trailing "Entity" suffix is
// stripped, the rest is lowercased. "RoleEntity" and "Role" map to the
// same kind.
func Kind(kind string) string {
	kind = strings.TrimSuffix(kind, "Entity")
	return strings.ToLower(kind)
}

// KindOf derives the entity kind from a Go type. Pointer types are
// dereferenced first, so KindOf[*Role]() and KindOf[Role]() agree.
func KindOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return Kind(t.Name())
}

// ValidateKey rejects keys backends cannot store: empty, over
// MaxKeyLength, or containing control or whitespace characters.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", ErrInvalidKey, MaxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: key contains control or whitespace character", ErrInvalidKey)
		}
	}
	return nil
}

func buildKey(prefix, kind, discriminator string) string {
	key := prefix + KeySeparator + kind + KeySeparator + discriminator
	if len(key) <= MaxKeyLength {
		return key
	}
	// Collapse the discriminator to a digest. Deterministic, and the
	// prefix and kind segments stay readable for diagnostics.
	digest := xxhash.Sum64String(discriminator)
	return fmt.Sprintf("%s%s%s%sx%016x", prefix, KeySeparator, kind, KeySeparator, digest)
}

func normalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return emptyNameToken
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range strings.ToLower(trimmed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
