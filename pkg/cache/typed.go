package cache

import "context"

// Typed access over a byte-valued Backend. These helpers are the
// ad-hoc caching surface for callers that want a codec paired with a
// backend without wrapping a whole repository.

// FetchFn computes a value of type T when the cache has none.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Get retrieves and decodes the value under key.
// ok is false on a true miss.
func Get[T any](ctx context.Context, b Backend, c Codec, key string) (T, bool, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, false, err
	}

	data, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	var out T
	if err := c.Unmarshal(data, &out); err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// Set encodes value and stores it under key.
func Set[T any](ctx context.Context, b Backend, c Codec, key string, value T, opts EntryOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	data, err := c.Marshal(value)
	if err != nil {
		return err
	}
	return b.Set(ctx, key, data, opts)
}

// GetOrSet returns the decoded value under key, computing and storing
// it via fetch on a miss. Coalescing of concurrent fetches follows the
// backend's GetOrSet policy.
func GetOrSet[T any](ctx context.Context, b Backend, c Codec, key string, fetch FetchFn[T], opts EntryOptions) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}

	data, err := b.GetOrSet(ctx, key, func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return c.Marshal(value)
	}, opts)
	if err != nil {
		return zero, err
	}

	var out T
	if err := c.Unmarshal(data, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// GetMany retrieves and decodes the values for keys. Absent keys are
// missing from the result; a single undecodable entry fails the call.
func GetMany[T any](ctx context.Context, b Backend, c Codec, keys []string) (map[string]T, error) {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
	}

	raw, err := b.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(raw))
	for key, data := range raw {
		var v T
		if err := c.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// SetMany encodes and stores all items with the same options.
func SetMany[T any](ctx context.Context, b Backend, c Codec, items map[string]T, opts EntryOptions) error {
	if len(items) == 0 {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	encoded := make(map[string][]byte, len(items))
	for key, value := range items {
		if err := ValidateKey(key); err != nil {
			return err
		}
		data, err := c.Marshal(value)
		if err != nil {
			return err
		}
		encoded[key] = data
	}
	return b.SetMany(ctx, encoded, opts)
}
