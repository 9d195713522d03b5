package cache

import "time"

// Priority hints at how reluctant a backend should be to evict an entry
// under memory pressure. Only backends with their own eviction policy
// (the in-process one) act on it.
type Priority int8

const (
	// PriorityLow entries are evicted first.
	PriorityLow Priority = iota - 1
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh entries are evicted only after low and normal ones.
	PriorityHigh
	// PriorityNeverEvict entries are never evicted for capacity reasons.
	// They still expire.
	PriorityNeverEvict
)

// String returns the priority label used in logs.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityNeverEvict:
		return "never-evict"
	default:
		return "normal"
	}
}

// EntryOptions describes expiration and eviction for a single cache write.
//
// At most one expiration strategy is honored, resolved in this order:
// AbsoluteExpiration, RelativeExpiration, SlidingExpiration. When all
// three are zero the entry is cached without forced expiration; whether
// it lives forever is backend dependent.
type EntryOptions struct {
	// AbsoluteExpiration is the instant after which the entry is expired.
	AbsoluteExpiration time.Time

	// RelativeExpiration expires the entry this long after the write.
	RelativeExpiration time.Duration

	// SlidingExpiration expires the entry when it has not been read for
	// this long. Each hit restarts the window.
	SlidingExpiration time.Duration

	// Priority is the eviction priority hint.
	Priority Priority

	// Size is an optional weight used by size-bounded backends. Zero
	// means unweighted.
	Size int64
}

// WithTTL returns options expiring the entry ttl after the write, with
// normal priority. This is the shape the TTL policy hands out.
func WithTTL(ttl time.Duration) EntryOptions {
	return EntryOptions{RelativeExpiration: ttl}
}

// ExpiresAt resolves the options against now. ok is false when the
// entry has no forced expiration.
func (o EntryOptions) ExpiresAt(now time.Time) (expiry time.Time, ok bool) {
	switch {
	case !o.AbsoluteExpiration.IsZero():
		return o.AbsoluteExpiration, true
	case o.RelativeExpiration > 0:
		return now.Add(o.RelativeExpiration), true
	case o.SlidingExpiration > 0:
		return now.Add(o.SlidingExpiration), true
	default:
		return time.Time{}, false
	}
}

// TTL resolves the options to a duration from now. ok is false when the
// entry has no forced expiration.
func (o EntryOptions) TTL(now time.Time) (time.Duration, bool) {
	expiry, ok := o.ExpiresAt(now)
	if !ok {
		return 0, false
	}
	ttl := expiry.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return ttl, true
}

// Validate rejects contradictory option combinations.
func (o EntryOptions) Validate() error {
	if o.RelativeExpiration < 0 || o.SlidingExpiration < 0 || o.Size < 0 {
		return ErrInvalidValue
	}
	return nil
}
