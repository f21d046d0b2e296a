package ratelimit

import (
	"time"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// Decision is the outcome of one request against a Policy
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int
	ResetAt   time.Time
	// RetryAfter is whole seconds until ResetAt, rounded up. Only set when rejected.
	RetryAfter int
	// FirstDenied is true for the request that tipped the key over its quota in this window
	FirstDenied bool
}

// Limiter applies one Policy over a Store
type Limiter struct {
	policy  Policy
	store   Store
	now     func() time.Time
	sources []AddrSource

	// OnDenied is called on every rejected request, used for prometheus counters
	OnDenied func(policy, addr string)

	// OnFirstDenied is called once per key per window, used for logging
	OnFirstDenied func(policy string, k Key)

	// OnDecision is called for every request, accepted or not
	OnDecision func(policy string, d Decision)
}

type Option func(*Limiter)

// WithStore shares a Store between limiters, default is a private MemoryStore.
// Policies sharing a store must be bound to distinct routes or their counters collide.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithAddrSources sets the ordered client address lookup, default DefaultAddrSources
func WithAddrSources(sources ...AddrSource) Option {
	return func(l *Limiter) { l.sources = sources }
}

func WithOnDenied(fn func(policy, addr string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

func WithOnFirstDenied(fn func(policy string, k Key)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

func WithOnDecision(fn func(policy string, d Decision)) Option {
	return func(l *Limiter) { l.OnDecision = fn }
}

// New validates p and returns a Limiter bound to it
func New(p Policy, opts ...Option) (*Limiter, error) {
	if err := p.Validate(); err != nil {
		return nil, xerrors.Wrapf(err, "build limiter for policy %q", p.Name)
	}
	if p.Message == "" {
		p.Message = DefaultMessage
	}
	l := &Limiter{
		policy:  p,
		now:     time.Now,
		sources: DefaultAddrSources,
	}
	for _, o := range opts {
		o(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if len(l.sources) == 0 {
		l.sources = DefaultAddrSources
	}
	return l, nil
}

// MustNew is New for package level presets, panics on an invalid policy
func MustNew(p Policy, opts ...Option) *Limiter {
	l, err := New(p, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Limiter) Policy() Policy { return l.policy }

func (l *Limiter) Store() Store { return l.store }

// Decide counts one request for k and reports whether it is within quota.
// The request that gets rejected is still counted, count is capped at Max+1 so a flood
// cannot grow it without bound but stays rejected until the window expires.
func (l *Limiter) Decide(k Key) Decision {
	now := l.now()
	window := l.policy.Window
	max := l.policy.Max

	var prev int
	c := l.store.Update(k, func(c Counter, ok bool) Counter {
		if !ok || now.Sub(c.WindowStart) > window {
			c = Counter{WindowStart: now}
		}
		prev = c.Count
		if c.Count <= max {
			c.Count++
		}
		return c
	})

	d := Decision{
		Allowed:   c.Count <= max,
		Limit:     max,
		Remaining: max - c.Count,
		Count:     c.Count,
		ResetAt:   c.WindowStart.Add(window),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ceilSeconds(d.ResetAt.Sub(now))
		d.FirstDenied = prev == max
	}
	return d
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
