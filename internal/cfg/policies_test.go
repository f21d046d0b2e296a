package cfg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keithlinneman/splash-api/internal/ratelimit"
)

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return p
}

func TestLoadPolicies_EmptyPathReturnsPresets(t *testing.T) {
	got, err := LoadPolicies("")
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	want := ratelimit.Presets()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for name, p := range want {
		if got[name] != p {
			t.Errorf("%s = %+v, want %+v", name, got[name], p)
		}
	}
}

func TestLoadPolicies_Overrides(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  analytics:
    window: 2m
    max: 120
  strict:
    message: "  Slow down  "
`)
	got, err := LoadPolicies(path)
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}

	a := got[ratelimit.PolicyAnalytics]
	if a.Window != 2*time.Minute || a.Max != 120 {
		t.Errorf("analytics = %s/%d, want 2m/120", a.Window, a.Max)
	}
	if a.Message != ratelimit.AnalyticsPolicy().Message {
		t.Errorf("analytics message changed: %q", a.Message)
	}

	s := got[ratelimit.PolicyStrict]
	if s.Message != "Slow down" {
		t.Errorf("strict message = %q, want trimmed", s.Message)
	}
	if s.Window != 15*time.Minute || s.Max != 5 {
		t.Errorf("strict window/max changed: %s/%d", s.Window, s.Max)
	}

	if got[ratelimit.PolicyStats] != ratelimit.StatsPolicy() {
		t.Errorf("stats changed: %+v", got[ratelimit.PolicyStats])
	}
}

func TestLoadPolicies_EmptyFile(t *testing.T) {
	got, err := LoadPolicies(writePolicyFile(t, ""))
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}

func TestLoadPolicies_EmptyMessageFallsBackToDefault(t *testing.T) {
	got, err := LoadPolicies(writePolicyFile(t, "policies:\n  stats:\n    message: \"\"\n"))
	if err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	if got[ratelimit.PolicyStats].Message != ratelimit.DefaultMessage {
		t.Errorf("message = %q, want default", got[ratelimit.PolicyStats].Message)
	}
}

func TestLoadPolicies_UnknownPolicy(t *testing.T) {
	_, err := LoadPolicies(writePolicyFile(t, "policies:\n  uploads:\n    max: 3\n"))
	wantErrContains(t, err, `unknown policy "uploads"`)
}

func TestLoadPolicies_UnknownField(t *testing.T) {
	_, err := LoadPolicies(writePolicyFile(t, "policies:\n  stats:\n    limit: 3\n"))
	wantErrContains(t, err, "decode yaml")
}

func TestLoadPolicies_InvalidValues(t *testing.T) {
	_, err := LoadPolicies(writePolicyFile(t, "policies:\n  stats:\n    max: 0\n  strict:\n    window: 0s\n"))
	if !errors.Is(err, ratelimit.ErrInvalidPolicy) {
		t.Fatalf("err = %v, want ErrInvalidPolicy", err)
	}
	wantErrContains(t, err, `"stats" max must be > 0`)
	wantErrContains(t, err, `"strict" window must be > 0`)
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	_, err := LoadPolicies(filepath.Join(t.TempDir(), "nope.yaml"))
	wantErrContains(t, err, "read policy file")
}

func TestCheckRetention(t *testing.T) {
	p := ratelimit.Presets()
	if err := CheckRetention(time.Hour, p); err != nil {
		t.Fatalf("1h retention: %v", err)
	}
	if err := CheckRetention(15*time.Minute, p); err != nil {
		t.Fatalf("retention equal to longest window: %v", err)
	}

	err := CheckRetention(30*time.Second, p)
	wantErrContains(t, err, `policy "analytics"`)
	wantErrContains(t, err, `policy "stats"`)
	wantErrContains(t, err, `policy "strict"`)

	err = CheckRetention(5*time.Minute, p)
	wantErrContains(t, err, `policy "strict" window 15m0s`)
}
