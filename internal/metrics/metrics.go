package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/splash-api/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// window policy metrics
	policyDecisionsTotal *prometheus.CounterVec
	policyTrackedKeys    prometheus.Gauge
	janitorSweepsTotal   prometheus.Counter
	janitorEvictedTotal  prometheus.Counter
	policyInfo           *prometheus.GaugeVec

	// analytics store metrics
	analyticsEventsTotal *prometheus.CounterVec
	storeUp              prometheus.Gauge
}

// New builds a private registry with the go and process collectors. Labels are
// bounded: route is the chi pattern, never the raw path.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	httpLabels := []string{"method", "route"}

	m := &ServerMetrics{
		reg: reg,
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),

		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, httpLabels),
		// 256B..16MiB, analytics responses sit at the low end
		respBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}, httpLabels),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, httpLabels),
		httpPanicTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "1 while the pyroscope agent runs",
		}),

		ratelimitDeniedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-IP flood guard",
		}),
		ratelimitCapacityTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Times the flood guard visitor table was full",
		}),
		policyDecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Fixed window rate limit decisions by policy and outcome (allowed|rejected)",
		}, []string{"policy", "outcome"}),
		policyTrackedKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_tracked_keys",
			Help: "Client/route counters held after the last janitor sweep",
		}),
		janitorSweepsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_janitor_sweeps_total",
			Help: "Total number of janitor sweeps",
		}),
		janitorEvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_janitor_evicted_total",
			Help: "Total number of stale counters evicted by the janitor",
		}),
		policyInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratelimit_policy_max_requests",
			Help: "Configured request quota per window, by policy and window",
		}, []string{"policy", "window"}),

		analyticsEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Analytics store operations by kind and result (ok|error)",
		}, []string{"kind", "result"}),
		storeUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_store_up",
			Help: "1 when the last analytics store ping succeeded",
		}),
	}
	return m
}

func setBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

func (m *ServerMetrics) IncHttpPanic()         { m.httpPanicTotal.Inc() }
func (m *ServerMetrics) Handler() http.Handler { return m.handler }
func (m *ServerMetrics) IncRateLimitDenied()   { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { setBool(m.profilingActive, active) }

// ObservePolicyDecision counts one window policy decision
func (m *ServerMetrics) ObservePolicyDecision(policy string, allowed bool) {
	outcome := "rejected"
	if allowed {
		outcome = "allowed"
	}
	m.policyDecisionsTotal.WithLabelValues(policy, outcome).Inc()
}

// ObserveJanitorSweep records one sweep, remaining becomes the tracked keys gauge
func (m *ServerMetrics) ObserveJanitorSweep(removed, remaining int) {
	m.janitorSweepsTotal.Inc()
	m.janitorEvictedTotal.Add(float64(removed))
	m.policyTrackedKeys.Set(float64(remaining))
}

// SetPolicy publishes a configured policy, set once at startup
func (m *ServerMetrics) SetPolicy(policy string, window time.Duration, max int) {
	m.policyInfo.WithLabelValues(policy, window.String()).Set(float64(max))
}

// IncAnalyticsEvent counts an analytics store operation, err selects the result label
func (m *ServerMetrics) IncAnalyticsEvent(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.analyticsEventsTotal.WithLabelValues(kind, result).Inc()
}

func (m *ServerMetrics) SetStoreUp(up bool) { setBool(m.storeUp, up) }
