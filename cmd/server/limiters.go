package main

import (
	"context"
	"fmt"

	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/metrics"
	"github.com/keithlinneman/splash-api/internal/ratelimit"
)

// limiterSet holds one window limiter per route group, all sharing one counter store
type limiterSet struct {
	store   *ratelimit.MemoryStore
	beacon  *ratelimit.Limiter
	admin   *ratelimit.Limiter
	cleanup *ratelimit.Limiter
}

// addrSources picks the identity lookup for -ratelimit-identity
func addrSources(identity string) []ratelimit.AddrSource {
	if identity == "resolved" {
		return append([]ratelimit.AddrSource{ratelimit.ResolvedClientIP}, ratelimit.DefaultAddrSources...)
	}
	return ratelimit.DefaultAddrSources
}

func newLimiterSet(ctx context.Context, L log.Logger, m *metrics.ServerMetrics, policies map[string]ratelimit.Policy, sources []ratelimit.AddrSource) (*limiterSet, error) {
	set := &limiterSet{store: ratelimit.NewMemoryStore()}

	build := func(name string) (*ratelimit.Limiter, error) {
		p, ok := policies[name]
		if !ok {
			return nil, fmt.Errorf("rate limit policy %q not configured", name)
		}
		m.SetPolicy(p.Name, p.Window, p.Max)
		return ratelimit.New(p,
			ratelimit.WithStore(set.store),
			ratelimit.WithAddrSources(sources...),
			ratelimit.WithOnDecision(func(policy string, d ratelimit.Decision) {
				m.ObservePolicyDecision(policy, d.Allowed)
			}),
			// only log the first rejection per key and window
			ratelimit.WithOnFirstDenied(func(policy string, k ratelimit.Key) {
				L.Warn(ctx, "rate limit triggered", "policy", policy, "ip", k.Addr, "route", k.Route)
			}),
		)
	}

	var err error
	if set.beacon, err = build(ratelimit.PolicyAnalytics); err != nil {
		return nil, err
	}
	if set.admin, err = build(ratelimit.PolicyStats); err != nil {
		return nil, err
	}
	if set.cleanup, err = build(ratelimit.PolicyStrict); err != nil {
		return nil, err
	}
	return set, nil
}
