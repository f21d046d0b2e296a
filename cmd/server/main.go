package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/splash-api/internal/analytics"
	"github.com/keithlinneman/splash-api/internal/analyticshttp"
	"github.com/keithlinneman/splash-api/internal/cfg"
	"github.com/keithlinneman/splash-api/internal/health"
	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/httpserver"
	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/metrics"
	"github.com/keithlinneman/splash-api/internal/opshttp"
	"github.com/keithlinneman/splash-api/internal/otelx"
	"github.com/keithlinneman/splash-api/internal/prof"
	"github.com/keithlinneman/splash-api/internal/ratelimit"
	"github.com/keithlinneman/splash-api/internal/secrets"
	"github.com/keithlinneman/splash-api/internal/sitehttp"
	v "github.com/keithlinneman/splash-api/internal/version"
)

func main() {
	started := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (api=%s, commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.App, vi.Version, v.APIVersion, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix SPLASH_ and validate
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// policies are fatal at startup, a bad window or max must never reach a request
	policies, err := cfg.LoadPolicies(conf.RateLimitPolicyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rate limit policy error:", err)
		os.Exit(1)
	}
	if err := cfg.CheckRetention(conf.RateLimitRetention, policies); err != nil {
		fmt.Fprintln(os.Stderr, "rate limit policy error:", err)
		os.Exit(1)
	}

	// Setup logging, levels and backend were checked by Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	backend, _ := log.ParseBackend(conf.LogBackend)
	lg, err := log.New(log.Options{
		Backend:           backend,
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// flushes buffered zap output, no-op for slog
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"api_version", v.APIVersion,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"release_build", vi.HasProvenance(),
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"log_backend", backend,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"frontend_url", conf.FrontendURL,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"db_driver", conf.DBDriver,
		"admin_api_key_ssm_param", conf.AdminAPIKeySSMParam,
		"ratelimit_policy_file", conf.RateLimitPolicyFile,
		"ratelimit_identity", conf.RateLimitIdentity,
		"ratelimit_sweep_interval", conf.RateLimitSweepInterval,
		"ratelimit_retention", conf.RateLimitRetention,
		"flood_rate", conf.FloodRate,
		"flood_burst", conf.FloodBurst,
	)

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Environment:   conf.Environment,
		Version:       vi.Version,
		Component:     "server",
		Tags: map[string]string{
			"app":      v.AppName,
			"commit":   vi.Commit,
			"build_id": vi.BuildId,
			"source":   "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     v.AppName,
		Component:   "server",
		Version:     vi.Version,
		Environment: conf.Environment,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// admin key, static value wins over the ssm parameter
	adminKey, err := secrets.ResolveAdminKey(ctx, conf.AdminAPIKey, conf.AdminAPIKeySSMParam,
		func(ctx context.Context) (*secrets.SSM, error) {
			return secrets.NewSSM(ctx, secrets.SSMOptions{Logger: L})
		})
	if err != nil {
		L.Error(ctx, err, "failed to resolve admin api key", "param", conf.AdminAPIKeySSMParam)
		os.Exit(1)
	}

	// open and migrate analytics storage, the server does not start without it
	store, err := analytics.Open(ctx, analytics.Config{
		Driver:    conf.DBDriver,
		DSN:       conf.DBURL,
		AuthToken: conf.DBAuthToken,
	})
	if err != nil {
		L.Error(ctx, err, "failed to open analytics store", "driver", conf.DBDriver)
		os.Exit(1)
	}
	if err := store.Migrate(ctx); err != nil {
		L.Error(ctx, err, "failed to migrate analytics store", "driver", store.Driver())
		os.Exit(1)
	}
	m.SetStoreUp(true)
	L.Info(ctx, "analytics store ready", "driver", store.Driver())

	// window limiters for the analytics route groups
	sources := addrSources(conf.RateLimitIdentity)
	limiters, err := newLimiterSet(ctx, L, m, policies, sources)
	if err != nil {
		L.Error(ctx, err, "failed to build rate limiters")
		os.Exit(1)
	}

	// evict stale counters, memory only, decisions do not depend on it
	janitor := ratelimit.NewJanitor(limiters.store,
		ratelimit.WithSweepInterval(conf.RateLimitSweepInterval),
		ratelimit.WithRetention(conf.RateLimitRetention),
		ratelimit.WithOnSweep(func(removed, remaining int) {
			m.ObserveJanitorSweep(removed, remaining)
			if removed > 0 {
				L.Debug(ctx, "rate limit counters swept", "removed", removed, "remaining", remaining)
			}
		}),
	)
	janitor.Start(ctx)

	// coarse per-IP flood guard in front of every route
	flood := ratelimit.NewFloodGuard(ctx,
		ratelimit.WithRate(conf.FloodRate, conf.FloodBurst),
		// increment prometheus counter on each denied request
		ratelimit.WithFloodOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithFloodOnFirstDenied(func(ip string) {
			L.Warn(ctx, "flood guard triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "flood guard capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	api := analyticshttp.NewAPI(analyticshttp.Options{
		Store:       store,
		Logger:      L,
		AdminKey:    adminKey,
		Beacon:      limiters.beacon,
		Admin:       limiters.admin,
		Cleanup:     limiters.cleanup,
		AddrSources: sources,
		OnEvent:     m.IncAnalyticsEvent,
	})
	site := sitehttp.New(sitehttp.Options{
		Environment: conf.Environment,
		Started:     started,
	})

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness needs the shutdown gate open and a reachable database
	storePing := health.Ping("analytics store", 500*time.Millisecond, store.Ping)
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			err := storePing(ctx)
			m.SetStoreUp(err == nil)
			return err
		}),
	)

	// start public http server
	siteHTTPStop, err := httpserver.Start(
		ctx,
		httpserver.Options{
			Port:      conf.HTTPPort,
			Health:    health.Fixed(true, ""),
			Readiness: readiness,
			APIRoutes: func(r chi.Router) {
				site.RegisterRoutes(r)
				api.RegisterRoutes(r)
			},
			SiteHandler:  http.HandlerFunc(site.HandleNotFound),
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  flood.Middleware,
			CORSMW:       httpmw.CORS(conf.FrontendURL),
			ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
			Logger:       L,
		},
	)
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks and pprof
	// sg restricts inbound to internal monitoring infrastructure
	// we reject connections from public ips in middleware to prevent accidental
	// exposure if sg is misconfigured or load balancer ever sends traffic there
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		AllowPublic: conf.Environment == "development",
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness checks to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// will make sleep time tunable in the future
	L.Info(context.Background(), "sleeping 60s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(60 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "public http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := store.Close(); err != nil {
		L.Error(context.Background(), err, "analytics store close")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	_ = lg.Sync()
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
