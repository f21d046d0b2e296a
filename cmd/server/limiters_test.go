package main

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/metrics"
	"github.com/keithlinneman/splash-api/internal/ratelimit"
)

func TestAddrSources(t *testing.T) {
	req := httptest.NewRequest("GET", "/analytics/visit", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	if got, _ := ratelimit.Identify(req, addrSources("forwarded")...); got != "203.0.113.9" {
		t.Errorf("forwarded identity = %q, want first X-Forwarded-For entry", got)
	}
	if n := len(addrSources("resolved")); n != len(ratelimit.DefaultAddrSources)+1 {
		t.Errorf("resolved sources = %d, want defaults plus client ip", n)
	}
	if len(ratelimit.DefaultAddrSources) != 2 {
		t.Error("addrSources must not grow the package defaults")
	}
}

func TestNewLimiterSet_SharesStore(t *testing.T) {
	m := metrics.New()
	set, err := newLimiterSet(context.Background(), log.Nop(), m, ratelimit.Presets(), ratelimit.DefaultAddrSources)
	if err != nil {
		t.Fatalf("newLimiterSet: %v", err)
	}
	for name, l := range map[string]*ratelimit.Limiter{
		ratelimit.PolicyAnalytics: set.beacon,
		ratelimit.PolicyStats:     set.admin,
		ratelimit.PolicyStrict:    set.cleanup,
	} {
		if l.Policy().Name != name {
			t.Errorf("limiter policy = %q, want %q", l.Policy().Name, name)
		}
		if l.Store() != ratelimit.Store(set.store) {
			t.Errorf("%s limiter does not use the shared store", name)
		}
	}

	set.beacon.Decide(ratelimit.Key{Addr: "198.51.100.1", Route: "/analytics/visit"})
	set.admin.Decide(ratelimit.Key{Addr: "198.51.100.1", Route: "/analytics/stats"})
	if set.store.Len() != 2 {
		t.Errorf("store len = %d, want 2", set.store.Len())
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`ratelimit_decisions_total{outcome="allowed",policy="analytics"} 1`,
		`ratelimit_policy_max_requests{policy="strict",window="15m0s"} 5`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestNewLimiterSet_MissingPolicy(t *testing.T) {
	policies := ratelimit.Presets()
	delete(policies, ratelimit.PolicyStrict)
	_, err := newLimiterSet(context.Background(), log.Nop(), metrics.New(), policies, nil)
	if err == nil || !strings.Contains(err.Error(), `"strict" not configured`) {
		t.Fatalf("err = %v", err)
	}
}
