package health

import (
	"net/http"
	"strings"
)

// HealthzHandler answers "ok" while p passes
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok") }

// ReadyzHandler answers "ready" while p passes
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready") }

// probeHandler serves plain text, 503 with one failure reason per line. A nil
// probe always passes.
func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")

		status, body := http.StatusOK, okBody
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, strings.TrimSpace(err.Error())
			}
		}
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(body + "\n"))
		}
	}
}
