package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestNewPolicy_Valid(t *testing.T) {
	p, err := NewPolicy("custom", time.Minute, 3, "slow down")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if p.Name != "custom" || p.Window != time.Minute || p.Max != 3 || p.Message != "slow down" {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestNewPolicy_DefaultMessage(t *testing.T) {
	p, err := NewPolicy("custom", time.Minute, 3, "  ")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if p.Message != DefaultMessage {
		t.Fatalf("Message = %q, want default", p.Message)
	}
}

func TestNewPolicy_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		pname  string
		window time.Duration
		max    int
	}{
		{"zero window", "p", 0, 1},
		{"negative window", "p", -time.Second, 1},
		{"zero max", "p", time.Second, 0},
		{"negative max", "p", time.Second, -5},
		{"no name", "", time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.pname, tt.window, tt.max, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("error %v is not ErrInvalidPolicy", err)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	presets := Presets()
	want := map[string]struct {
		window time.Duration
		max    int
	}{
		PolicyAnalytics: {time.Minute, 60},
		PolicyStats:     {time.Minute, 10},
		PolicyStrict:    {15 * time.Minute, 5},
	}
	if len(presets) != len(want) {
		t.Fatalf("got %d presets, want %d", len(presets), len(want))
	}
	for name, w := range want {
		p, ok := presets[name]
		if !ok {
			t.Fatalf("missing preset %q", name)
		}
		if p.Window != w.window || p.Max != w.max {
			t.Errorf("%s = %s/%d, want %s/%d", name, p.Window, p.Max, w.window, w.max)
		}
		if p.Message == "" {
			t.Errorf("%s has no message", name)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("%s invalid: %v", name, err)
		}
	}
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	_, err := New(Policy{Name: "broken"})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("New err = %v, want ErrInvalidPolicy", err)
	}
}

func TestMustNew_PanicsOnInvalidPolicy(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew should panic")
		}
	}()
	MustNew(Policy{Name: "broken"})
}
