package cache

import (
	"testing"
	"time"
)

func TestTTLPolicy_TTLFor(t *testing.T) {
	policy := NewTTLPolicy(map[string]time.Duration{
		"role":     30 * time.Minute,
		"document": 5 * time.Minute,
	})

	tests := []struct {
		name string
		kind string
		want time.Duration
	}{
		{"exact match", "role", 30 * time.Minute},
		{"normalized kind", "RoleEntity", 30 * time.Minute},
		{"uppercase kind", "Role", 30 * time.Minute},
		{"second entry", "document", 5 * time.Minute},
		{"hierarchy match derived kind", "adminrole", 30 * time.Minute},
		{"hierarchy match base of entry", "doc", 5 * time.Minute},
		{"unknown kind falls back", "user", DefaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.TTLFor(tt.kind); got != tt.want {
				t.Errorf("TTLFor(%q) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestTTLPolicy_EmptyTable(t *testing.T) {
	for _, policy := range []*TTLPolicy{NewTTLPolicy(nil), NewTTLPolicy(map[string]time.Duration{})} {
		if got := policy.TTLFor("anything"); got != DefaultTTL {
			t.Errorf("TTLFor on empty policy = %v, want %v", got, DefaultTTL)
		}
	}
}

func TestTTLPolicy_CustomDefault(t *testing.T) {
	policy := NewTTLPolicyWithDefault(nil, time.Hour)
	if got := policy.TTLFor("role"); got != time.Hour {
		t.Errorf("TTLFor = %v, want 1h", got)
	}
	if got := policy.Default(); got != time.Hour {
		t.Errorf("Default() = %v, want 1h", got)
	}

	// Non-positive defaults fall back to the global one.
	policy = NewTTLPolicyWithDefault(nil, 0)
	if got := policy.Default(); got != DefaultTTL {
		t.Errorf("Default() = %v, want %v", got, DefaultTTL)
	}
}

func TestTTLPolicy_IgnoresNonPositiveEntries(t *testing.T) {
	policy := NewTTLPolicy(map[string]time.Duration{
		"role": 0,
		"user": -time.Minute,
	})
	if policy.Len() != 0 {
		t.Errorf("Len() = %d, want 0", policy.Len())
	}
	if got := policy.TTLFor("role"); got != DefaultTTL {
		t.Errorf("TTLFor(role) = %v, want %v", got, DefaultTTL)
	}
}

func TestTTLPolicy_OptionsFor(t *testing.T) {
	policy := NewTTLPolicy(map[string]time.Duration{"role": 30 * time.Minute})

	opts := policy.OptionsFor("role")
	if opts.RelativeExpiration != 30*time.Minute {
		t.Errorf("OptionsFor(role).RelativeExpiration = %v, want 30m", opts.RelativeExpiration)
	}
	if opts.Priority != PriorityNormal {
		t.Errorf("OptionsFor(role).Priority = %v, want normal", opts.Priority)
	}

	opts = policy.OptionsWithTTL(time.Second)
	if opts.RelativeExpiration != time.Second {
		t.Errorf("OptionsWithTTL(1s).RelativeExpiration = %v", opts.RelativeExpiration)
	}
	opts = policy.OptionsWithTTL(0)
	if opts.RelativeExpiration != DefaultTTL {
		t.Errorf("OptionsWithTTL(0).RelativeExpiration = %v, want %v", opts.RelativeExpiration, DefaultTTL)
	}
}
