// Package sitehttp serves the API's own surface: the endpoint index, the
// public /health document and the JSON fallbacks for unmatched requests.
package sitehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/version"
)

const indexMessage = "ChefMyKLove Splash Portfolio API"

type Options struct {
	// Environment is reported by /health, e.g. development or production
	Environment string

	// Started is the process start time used for uptime, default is New's call time
	Started time.Time

	Now func() time.Time
}

type Routes struct {
	env     string
	started time.Time
	now     func() time.Time
}

func New(opts Options) *Routes {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	return &Routes{env: opts.Environment, started: opts.Started, now: opts.Now}
}

type Index struct {
	Message   string    `json:"message"`
	Version   string    `json:"version"`
	Endpoints Endpoints `json:"endpoints"`
}

type Endpoints struct {
	Analytics AnalyticsEndpoints `json:"analytics"`
	Health    string             `json:"health"`
}

type AnalyticsEndpoints struct {
	Visit     string `json:"visit"`
	Click     string `json:"click"`
	TimeSpent string `json:"timeSpent"`
	Stats     string `json:"stats"`
	Live      string `json:"live"`
	Clear     string `json:"clear"`
}

type Health struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	// Uptime is seconds since start
	Uptime float64 `json:"uptime"`
}

type NotFound struct {
	Error   string `json:"error"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RegisterRoutes goes before other registrars, chi copies the fallbacks into
// subrouters mounted afterwards so a wrong method anywhere gets the JSON 404.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	r.Get("/", rt.HandleIndex)
	r.Get("/health", rt.HandleHealth)

	// NotFound rather than a wildcard route so routes registered by others still match
	r.NotFound(rt.HandleNotFound)
	r.MethodNotAllowed(rt.HandleNotFound)
}

func (rt *Routes) HandleIndex(w http.ResponseWriter, r *http.Request) {
	httpmw.WriteJSON(w, http.StatusOK, Index{
		Message: indexMessage,
		Version: version.APIVersion,
		Endpoints: Endpoints{
			Analytics: AnalyticsEndpoints{
				Visit:     "POST /analytics/visit",
				Click:     "POST /analytics/click",
				TimeSpent: "POST /analytics/time-spent",
				Stats:     "GET /analytics/stats",
				Live:      "GET /analytics/live",
				Clear:     "DELETE /analytics/clear",
			},
			Health: "GET /health",
		},
	})
}

// HandleHealth is the public liveness document, the ops port has the real probes
func (rt *Routes) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := rt.now()
	httpmw.WriteJSON(w, http.StatusOK, Health{
		Status:      "ok",
		Timestamp:   now.UTC(),
		Environment: rt.env,
		Uptime:      now.Sub(rt.started).Seconds(),
	})
}

func (rt *Routes) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	httpmw.WriteJSON(w, http.StatusNotFound, NotFound{
		Error:   "Not Found",
		Path:    r.URL.Path,
		Message: "The requested endpoint does not exist",
	})
}
