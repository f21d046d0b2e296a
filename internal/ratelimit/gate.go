package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/log"
)

// Response headers set on every gated request
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// resetLayout is ISO 8601 with millisecond precision, always UTC
const resetLayout = "2006-01-02T15:04:05.000Z07:00"

// Rejection is the 429 response body
type Rejection struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware rejects requests over the policy quota with 429, counters are keyed by client
// address and URL path. Never blocks or retries, the client is told when to come back.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		addr, ok := Identify(r, l.sources...)
		if !ok {
			log.FromContext(ctx).Debug(ctx, "client address unresolvable, using shared bucket",
				"policy", l.policy.Name,
				"route", r.URL.Path,
			)
		}
		k := Key{Addr: addr, Route: r.URL.Path}
		d := l.Decide(k)

		if l.OnDecision != nil {
			l.OnDecision(l.policy.Name, d)
		}

		h := w.Header()
		h.Set(HeaderLimit, strconv.Itoa(d.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
		h.Set(HeaderReset, d.ResetAt.UTC().Format(resetLayout))

		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		// quota exceeded is expected traffic, counted and logged once per window, never as an error
		if d.FirstDenied && l.OnFirstDenied != nil {
			l.OnFirstDenied(l.policy.Name, k)
		}
		if l.OnDenied != nil {
			l.OnDenied(l.policy.Name, addr)
		}

		h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
		writeRejection(w, l.policy.Message, d.RetryAfter)
	})
}

// writeRejection sends the 429 body, Retry-After must already be set
func writeRejection(w http.ResponseWriter, message string, retryAfter int) {
	httpmw.WriteJSON(w, http.StatusTooManyRequests, Rejection{
		Success:    false,
		Error:      "Rate limit exceeded",
		Message:    message,
		RetryAfter: retryAfter,
	})
}

// ParseReset parses an X-RateLimit-Reset header value
func ParseReset(v string) (time.Time, error) {
	return time.Parse(resetLayout, v)
}
