package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/splash-api/internal/httpmw"
)

// visitor tracks a single IPs token bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged tracks whether we have already emitted the first-denial log
	// resets when the entry is evicted and re-created
	logged bool
}

// FloodGuard is a coarse per-IP token bucket applied to every route before the per-policy
// limiters. It catches a single address hammering the server regardless of route.
type FloodGuard struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle IP stays in the map before cleanup evicts it
	ttl time.Duration

	// maxVisitors caps the map, new IPs are rejected at capacity. 0 disables the cap.
	maxVisitors int
	atCapacity  bool

	OnFirstDenied func(ip string)
	OnDenied      func(ip string)
	// OnCapacity fires once each time the map fills up
	OnCapacity func()
}

type FloodOption func(*FloodGuard)

const (
	defaultFloodTTL = 5 * time.Minute
	// floodRetryAfter is the fixed Retry-After in seconds for flood rejections
	floodRetryAfter = 30
)

// WithRate sets the refill rate and bucket size.
// WithRate(10, 50) allows 50 requests at once, then refills at 10 requests per second
func WithRate(perSecond float64, burst int) FloodOption {
	return func(g *FloodGuard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

// WithTTL sets how long an idle visitor is kept, d <= 0 keeps the default
func WithTTL(d time.Duration) FloodOption {
	return func(g *FloodGuard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

func WithMaxVisitors(n int) FloodOption {
	return func(g *FloodGuard) { g.maxVisitors = n }
}

// WithFloodOnFirstDenied is for logging, we log once per visitor but count every denial
func WithFloodOnFirstDenied(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) { g.OnFirstDenied = fn }
}

func WithFloodOnDenied(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) { g.OnDenied = fn }
}

func WithOnCapacity(fn func()) FloodOption {
	return func(g *FloodGuard) { g.OnCapacity = fn }
}

// NewFloodGuard starts the background cleanup goroutine, it exits when ctx is cancelled
func NewFloodGuard(ctx context.Context, opts ...FloodOption) *FloodGuard {
	g := &FloodGuard{
		visitors:    make(map[string]*visitor),
		perSecond:   20,
		burst:       60,
		ttl:         defaultFloodTTL,
		maxVisitors: 100000,
	}
	for _, o := range opts {
		o(g)
	}
	go g.cleanup(ctx)
	return g
}

// allow reports whether ip is within its bucket, creating the visitor on first sight
func (g *FloodGuard) allow(ip string) bool {
	g.mu.Lock()
	v, exists := g.visitors[ip]
	if !exists {
		if g.maxVisitors > 0 && len(g.visitors) >= g.maxVisitors {
			fire := !g.atCapacity
			g.atCapacity = true
			g.mu.Unlock()
			if fire && g.OnCapacity != nil {
				g.OnCapacity()
			}
			if g.OnDenied != nil {
				g.OnDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(g.perSecond, g.burst)}
		g.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.Allow()

	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// release before calling hooks, they may do slow work
	g.mu.Unlock()

	if first && g.OnFirstDenied != nil {
		g.OnFirstDenied(ip)
	}
	if !allowed && g.OnDenied != nil {
		g.OnDenied(ip)
	}
	return allowed
}

// cleanup evicts visitors idle longer than ttl, runs every ttl/2
func (g *FloodGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(max(g.ttl/2, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for ip, v := range g.visitors {
				if now.Sub(v.lastSeen) > g.ttl {
					delete(g.visitors, ip)
				}
			}
			if g.maxVisitors <= 0 || len(g.visitors) < g.maxVisitors {
				g.atCapacity = false
			}
			g.mu.Unlock()
		}
	}
}

// Middleware rejects with 429 using the IP resolved by httpmw.ClientIP, must run after it
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = UnknownAddr
		}

		if !g.allow(ip) {
			// no detail about the bucket, the per-policy limiter is the one clients should reason about
			w.Header().Set("Retry-After", strconv.Itoa(floodRetryAfter))
			writeRejection(w, DefaultMessage, floodRetryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}
