package cache

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes values to the bytes a Backend stores and decodes them
// back. Encode/decode failures are serialization errors and must wrap
// ErrSerialization.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec encodes values as JSON. It is the default: entries stay
// human-readable in redis, which pays off when diagnosing stale keys.
type JSONCodec struct{}

// Marshal implements Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: json encode: %v", ErrSerialization, err)
	}
	return data, nil
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: json decode: %v", ErrSerialization, err)
	}
	return nil
}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// MsgpackCodec encodes values as msgpack. Denser and faster than JSON;
// use it when entries are large or hot.
type MsgpackCodec struct{}

// Marshal implements Codec.
func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: msgpack encode: %v", ErrSerialization, err)
	}
	return data, nil
}

// Unmarshal implements Codec.
func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: msgpack decode: %v", ErrSerialization, err)
	}
	return nil
}

// Name implements Codec.
func (MsgpackCodec) Name() string { return "msgpack" }

// DefaultCodec is used wherever no codec is configured explicitly.
var DefaultCodec Codec = JSONCodec{}
