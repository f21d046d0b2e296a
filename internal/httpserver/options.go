package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/splash-api/internal/health"
	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/log"
)

// DefaultMaxBodyBytes caps request bodies, beacons and clear requests are tiny
const DefaultMaxBodyBytes int64 = 16 << 10

// DefaultPort matches the port the frontend proxies to
const DefaultPort = 3002

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    httpmw.Middleware
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes mounts the application routes on the chi router
	APIRoutes func(chi.Router)
	// SiteHandler answers unmatched paths and methods
	SiteHandler http.Handler

	// RateLimitMW is the per-IP flood guard, runs before tracing so floods stay cheap
	RateLimitMW httpmw.Middleware
	// CORSMW runs outside the flood guard so 429s stay readable by the browser
	CORSMW httpmw.Middleware

	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64
}
