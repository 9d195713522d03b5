package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/cache/mock"
)

type account struct {
	ID      string `json:"id" msgpack:"id"`
	Balance int64  `json:"balance" msgpack:"balance"`
}

func TestGetSet_RoundTrip(t *testing.T) {
	for _, codec := range []cache.Codec{cache.JSONCodec{}, cache.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx := context.Background()
			backend := mock.New("mock")
			want := account{ID: "a-1", Balance: 1200}

			if err := cache.Set(ctx, backend, codec, "entity:account:a1", want, cache.WithTTL(time.Minute)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, ok, err := cache.Get[account](ctx, backend, codec, "entity:account:a1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !ok {
				t.Fatal("Get() reported a miss after Set")
			}
			if got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestGet_Miss(t *testing.T) {
	_, ok, err := cache.Get[account](context.Background(), mock.New("mock"), cache.DefaultCodec, "entity:account:absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() reported a hit on an empty backend")
	}
}

func TestGet_InvalidKey(t *testing.T) {
	_, _, err := cache.Get[account](context.Background(), mock.New("mock"), cache.DefaultCodec, "")
	if !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Get(empty key) error = %v, want ErrInvalidKey", err)
	}
}

func TestGet_CorruptPayload(t *testing.T) {
	backend := mock.New("mock")
	backend.Seed("entity:account:a1", []byte("{not json"))

	_, _, err := cache.Get[account](context.Background(), backend, cache.DefaultCodec, "entity:account:a1")
	if !errors.Is(err, cache.ErrSerialization) {
		t.Errorf("Get(corrupt payload) error = %v, want ErrSerialization", err)
	}
}

func TestSet_UnencodableValue(t *testing.T) {
	err := cache.Set(context.Background(), mock.New("mock"), cache.JSONCodec{}, "k", func() {}, cache.EntryOptions{})
	if !errors.Is(err, cache.ErrSerialization) {
		t.Errorf("Set(func value) error = %v, want ErrSerialization", err)
	}
}

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	backend := mock.New("mock")
	codec := cache.DefaultCodec
	calls := 0
	fetch := func(context.Context) (account, error) {
		calls++
		return account{ID: "a-1", Balance: 50}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.GetOrSet(ctx, backend, codec, "entity:account:a1", fetch, cache.WithTTL(time.Minute))
		if err != nil {
			t.Fatalf("GetOrSet() #%d error = %v", i, err)
		}
		if got.Balance != 50 {
			t.Errorf("GetOrSet() #%d = %+v", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("fetch ran %d times, want 1", calls)
	}
}

func TestGetOrSet_FetchError(t *testing.T) {
	wantErr := errors.New("upstream down")
	_, err := cache.GetOrSet(context.Background(), mock.New("mock"), cache.DefaultCodec, "k1",
		func(context.Context) (account, error) { return account{}, wantErr },
		cache.EntryOptions{})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrSet() error = %v, want %v", err, wantErr)
	}
}

func TestGetManySetMany(t *testing.T) {
	ctx := context.Background()
	backend := mock.New("mock")
	codec := cache.DefaultCodec

	items := map[string]account{
		"entity:account:a1": {ID: "a-1", Balance: 1},
		"entity:account:a2": {ID: "a-2", Balance: 2},
	}
	if err := cache.SetMany(ctx, backend, codec, items, cache.WithTTL(time.Minute)); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}

	got, err := cache.GetMany[account](ctx, backend, codec,
		[]string{"entity:account:a1", "entity:account:a2", "entity:account:absent"})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetMany() returned %d entries, want 2", len(got))
	}
	if got["entity:account:a2"].Balance != 2 {
		t.Errorf("GetMany()[a2] = %+v", got["entity:account:a2"])
	}
	if _, ok := got["entity:account:absent"]; ok {
		t.Error("GetMany() returned an entry for an absent key")
	}
}

func TestCodec_ErrorsWrapSerialization(t *testing.T) {
	codecs := []cache.Codec{cache.JSONCodec{}, cache.MsgpackCodec{}}
	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			var out account
			if err := codec.Unmarshal([]byte{0xc1}, &out); !errors.Is(err, cache.ErrSerialization) {
				t.Errorf("Unmarshal(garbage) error = %v, want ErrSerialization", err)
			}
		})
	}
}
