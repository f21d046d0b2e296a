package opshttp

import (
	"net/http"

	"github.com/keithlinneman/splash-api/internal/health"
)

// DefaultPort serves the ops listener when Options.Port is 0
const DefaultPort = 9000

type Options struct {
	Port int

	// Metrics is mounted at /metrics when set
	Metrics http.Handler

	// EnablePprof mounts /debug/pprof and /debug/vars
	EnablePprof bool

	Health    health.Probe
	Readiness health.Probe

	// AllowPublic disables the private network check, for local runs behind docker port mapping
	AllowPublic bool
}
