package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/cache/mock"
	"cacheside/pkg/logging"
	"cacheside/pkg/metrics"
	memmetrics "cacheside/pkg/metrics/memory"
)

func testConfig() Config {
	return Config{
		Timeout: 100 * time.Millisecond,
		CircuitBreaker: BreakerConfig{
			MaxRequests: 1,
			Timeout:     50 * time.Millisecond,
			ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
		},
	}
}

func TestWrap_Passthrough(t *testing.T) {
	ctx := context.Background()
	inner := mock.New("inner")
	b := Wrap(inner, testConfig(), WithLogger(logging.NewNop()))

	if err := b.Set(ctx, "k", []byte("v"), cache.WithTTL(time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Errorf("Get() = %q, %v, %v", data, ok, err)
	}
	if ok, err := b.Exists(ctx, "k"); err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
	if err := b.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("Get() hit after Remove")
	}
	if got := b.Name(); got != "inner" {
		t.Errorf("Name() = %q", got)
	}
}

func TestWrap_MissIsNotFailure(t *testing.T) {
	ctx := context.Background()
	b := Wrap(mock.New("inner"), testConfig(), WithLogger(logging.NewNop()))

	// Plenty of clean misses must not trip the breaker.
	for i := 0; i < 20; i++ {
		if _, ok, err := b.Get(ctx, "absent"); err != nil || ok {
			t.Fatalf("Get() #%d = %v, %v", i, ok, err)
		}
	}
	if b.State() != metrics.CircuitClosed {
		t.Errorf("State() = %v after clean misses, want closed", b.State())
	}
}

func TestWrap_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	stats := memmetrics.New()
	b := Wrap(mock.Unavailable("inner"), testConfig(), WithLogger(logging.NewNop()), WithMetrics(stats))

	for i := 0; i < 3; i++ {
		if _, _, err := b.Get(ctx, "k"); !cache.IsUnavailable(err) {
			t.Fatalf("Get() #%d error = %v, want ErrBackendUnavailable", i, err)
		}
	}

	if b.State() != metrics.CircuitOpen {
		t.Fatalf("State() = %v after consecutive failures, want open", b.State())
	}
	if stats.CircuitState("inner") != metrics.CircuitOpen {
		t.Errorf("recorded circuit state = %v, want open", stats.CircuitState("inner"))
	}

	// While open, calls fail fast with the same taxonomy the composite
	// falls back on.
	_, _, err := b.Get(ctx, "k")
	if !cache.IsUnavailable(err) {
		t.Errorf("Get() with open breaker error = %v, want ErrBackendUnavailable", err)
	}
}

func TestWrap_NilReadyToTripDefault(t *testing.T) {
	ctx := context.Background()
	config := Config{CircuitBreaker: BreakerConfig{MaxRequests: 1, Timeout: time.Minute}}
	b := Wrap(mock.Unavailable("inner"), config, WithLogger(logging.NewNop()))

	// The nil hook trips after five consecutive failures, not before.
	for i := 0; i < 4; i++ {
		b.Get(ctx, "k")
	}
	if b.State() != metrics.CircuitClosed {
		t.Fatalf("State() = %v after 4 failures, want closed", b.State())
	}

	b.Get(ctx, "k")
	if b.State() != metrics.CircuitOpen {
		t.Errorf("State() = %v after 5 consecutive failures, want open", b.State())
	}
}

func TestWrap_BreakerRecovers(t *testing.T) {
	ctx := context.Background()
	inner := mock.New("inner")
	fail := true
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, bool, error) {
		if fail {
			return nil, false, cache.Unavailable("inner", "get", errors.New("down"))
		}
		return []byte("v"), true, nil
	}
	b := Wrap(inner, testConfig(), WithLogger(logging.NewNop()))

	for i := 0; i < 3; i++ {
		b.Get(ctx, "k")
	}
	if b.State() != metrics.CircuitOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	// The transport heals; after the open interval a probe succeeds and
	// the breaker closes again.
	fail = false
	time.Sleep(80 * time.Millisecond)

	data, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Fatalf("probe Get() = %q, %v, %v", data, ok, err)
	}
	if b.State() != metrics.CircuitClosed {
		t.Errorf("State() = %v after successful probe, want closed", b.State())
	}
}

func TestWrap_TimeoutBecomesUnavailable(t *testing.T) {
	ctx := context.Background()
	inner := mock.New("inner")
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, bool, error) {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	b := Wrap(inner, Config{Timeout: 20 * time.Millisecond}, WithLogger(logging.NewNop()))

	_, _, err := b.Get(ctx, "k")
	if !cache.IsUnavailable(err) {
		t.Errorf("Get() error = %v, want slow backend mapped to ErrBackendUnavailable", err)
	}
}

func TestWrap_CallerCancellationPassesThrough(t *testing.T) {
	inner := mock.New("inner")
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, bool, error) {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	b := Wrap(inner, testConfig(), WithLogger(logging.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := b.Get(ctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Get() error = %v, want context.Canceled", err)
	}
	if cache.IsUnavailable(err) {
		t.Error("caller cancellation reclassified as a backend fault")
	}
	if b.State() != metrics.CircuitClosed {
		t.Errorf("State() = %v, cancellation must not count against the breaker", b.State())
	}
}

func TestWrap_GetOrSetFactoryOutsideBreaker(t *testing.T) {
	ctx := context.Background()
	inner := mock.New("inner")
	b := Wrap(inner, testConfig(), WithLogger(logging.NewNop()))

	// A slow, failing factory must not open the breaker; only transport
	// operations count.
	wantErr := errors.New("repository down")
	for i := 0; i < 5; i++ {
		_, err := b.GetOrSet(ctx, "k", func(context.Context) ([]byte, error) { return nil, wantErr }, cache.EntryOptions{})
		if !errors.Is(err, wantErr) {
			t.Fatalf("GetOrSet() #%d error = %v, want %v", i, err, wantErr)
		}
	}
	if b.State() != metrics.CircuitClosed {
		t.Errorf("State() = %v, factory errors must not trip the breaker", b.State())
	}

	data, err := b.GetOrSet(ctx, "k", func(context.Context) ([]byte, error) { return []byte("v"), nil }, cache.WithTTL(time.Minute))
	if err != nil || string(data) != "v" {
		t.Fatalf("GetOrSet() = %q, %v", data, err)
	}
	if !inner.Contains("k") {
		t.Error("GetOrSet did not populate the inner backend")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", config.Timeout)
	}

	trip := config.CircuitBreaker.ReadyToTrip
	if trip(Counts{Requests: 19, TotalFailures: 19}) {
		t.Error("breaker tripped below the request floor")
	}
	if !trip(Counts{Requests: 20, TotalFailures: 3}) {
		t.Error("breaker did not trip at a 15% failure rate")
	}
	if trip(Counts{Requests: 100, TotalFailures: 5}) {
		t.Error("breaker tripped at a 5% failure rate")
	}

	if got := DefaultConfig().WithTimeout(2 * time.Second).Timeout; got != 2*time.Second {
		t.Errorf("WithTimeout = %v", got)
	}
}
