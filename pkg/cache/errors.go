package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for cache operations. Backends wrap these with %w so
// callers can classify failures with errors.Is.
var (
	// ErrBackendUnavailable means the cache transport could not be
	// reached. It is recoverable by falling back to another backend;
	// it never indicates a problem with the source of truth.
	ErrBackendUnavailable = errors.New("cache: backend unavailable")

	// ErrSerialization means a value could not be encoded or decoded
	// for storage. It is always propagated; silently caching a
	// malformed value would corrupt future reads.
	ErrSerialization = errors.New("cache: serialization failed")

	// ErrInvalidKey is returned for empty keys, keys over the length
	// limit, or keys containing control or whitespace characters.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrInvalidValue is returned for nil values or invalid options.
	ErrInvalidValue = errors.New("cache: invalid value")
)

// IsUnavailable reports whether err indicates an unreachable backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsSerialization reports whether err is a serialization failure.
func IsSerialization(err error) bool {
	return errors.Is(err, ErrSerialization)
}

// IsCancellation reports whether err stems from the caller's context
// being canceled or timing out, as opposed to a backend fault.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Unavailable wraps err as a backend-unavailable fault, preserving the
// original message for logs. Cancellation is never reclassified.
func Unavailable(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", ErrBackendUnavailable, backend, op, err)
}

// ClassifyError maps an error to a short label for metrics.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsCancellation(err):
		return "canceled"
	case errors.Is(err, ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	default:
		msg := strings.ToLower(err.Error())
		for _, hint := range []string{"connection", "connect", "dial", "broken pipe", "reset by peer"} {
			if strings.Contains(msg, hint) {
				return "connection"
			}
		}
		return "other"
	}
}
