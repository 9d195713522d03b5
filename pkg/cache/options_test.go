package cache

import (
	"testing"
	"time"
)

func TestEntryOptions_ExpiresAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(2 * time.Hour)

	tests := []struct {
		name   string
		opts   EntryOptions
		want   time.Time
		wantOK bool
	}{
		{
			name:   "no expiration",
			opts:   EntryOptions{},
			wantOK: false,
		},
		{
			name:   "relative",
			opts:   EntryOptions{RelativeExpiration: 30 * time.Minute},
			want:   now.Add(30 * time.Minute),
			wantOK: true,
		},
		{
			name:   "sliding",
			opts:   EntryOptions{SlidingExpiration: 5 * time.Minute},
			want:   now.Add(5 * time.Minute),
			wantOK: true,
		},
		{
			name:   "absolute",
			opts:   EntryOptions{AbsoluteExpiration: deadline},
			want:   deadline,
			wantOK: true,
		},
		{
			name: "absolute wins over relative",
			opts: EntryOptions{
				AbsoluteExpiration: deadline,
				RelativeExpiration: time.Minute,
			},
			want:   deadline,
			wantOK: true,
		},
		{
			name: "relative wins over sliding",
			opts: EntryOptions{
				RelativeExpiration: time.Minute,
				SlidingExpiration:  time.Hour,
			},
			want:   now.Add(time.Minute),
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.opts.ExpiresAt(now)
			if ok != tt.wantOK {
				t.Fatalf("ExpiresAt() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ExpiresAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryOptions_TTL(t *testing.T) {
	now := time.Now()

	if _, ok := (EntryOptions{}).TTL(now); ok {
		t.Error("TTL() on zero options must report ok=false")
	}

	ttl, ok := WithTTL(10 * time.Minute).TTL(now)
	if !ok || ttl != 10*time.Minute {
		t.Errorf("TTL() = %v, %v, want 10m, true", ttl, ok)
	}

	// An absolute expiration already in the past clamps to zero.
	past := EntryOptions{AbsoluteExpiration: now.Add(-time.Minute)}
	ttl, ok = past.TTL(now)
	if !ok || ttl != 0 {
		t.Errorf("TTL() for past expiry = %v, %v, want 0, true", ttl, ok)
	}
}

func TestEntryOptions_Validate(t *testing.T) {
	if err := WithTTL(time.Minute).Validate(); err != nil {
		t.Errorf("Validate() on valid options = %v", err)
	}
	if err := (EntryOptions{RelativeExpiration: -1}).Validate(); err == nil {
		t.Error("Validate() must reject negative relative expiration")
	}
	if err := (EntryOptions{SlidingExpiration: -1}).Validate(); err == nil {
		t.Error("Validate() must reject negative sliding expiration")
	}
	if err := (EntryOptions{Size: -1}).Validate(); err == nil {
		t.Error("Validate() must reject negative size")
	}
}

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityLow, "low"},
		{PriorityNormal, "normal"},
		{PriorityHigh, "high"},
		{PriorityNeverEvict, "never-evict"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
