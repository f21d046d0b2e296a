package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/splash-api/internal/log"
)

// EnvPrefix is prepended to every flag name to form its environment variable
const EnvPrefix = "SPLASH_"

type App struct {
	LogJSON           bool
	LogLevel          string
	LogBackend        string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	Environment      string
	FrontendURL      string
	TrustedProxyHops int

	DBDriver    string
	DBURL       string
	DBAuthToken string

	AdminAPIKey         string
	AdminAPIKeySSMParam string

	RateLimitPolicyFile    string
	RateLimitIdentity      string
	RateLimitSweepInterval time.Duration
	RateLimitRetention     time.Duration
	FloodRate              float64
	FloodBurst             int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.LogBackend, "log-backend", "slog", "slog|zap")
	fs.IntVar(&c.HTTPPort, "http-port", 3002, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.Environment, "environment", "development", "deployment environment reported by /health")
	fs.StringVar(&c.FrontendURL, "frontend-url", "http://localhost:8000", "origin allowed by CORS")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "reverse proxies in front of the server (0..10)")

	fs.StringVar(&c.DBDriver, "db-driver", "libsql", "libsql|pgx")
	fs.StringVar(&c.DBURL, "database-url", "file:./data/analytics.db", "postgres dsn, libsql url, or sqlite path")
	fs.StringVar(&c.DBAuthToken, "database-auth-token", "", "auth token for remote libsql")

	fs.StringVar(&c.AdminAPIKey, "admin-api-key", "", "shared secret for admin analytics endpoints")
	fs.StringVar(&c.AdminAPIKeySSMParam, "admin-api-key-ssm-param", "", "ssm parameter holding the admin api key (SecureString)")

	fs.StringVar(&c.RateLimitPolicyFile, "ratelimit-policy-file", "", "yaml file overriding rate limit presets")
	fs.StringVar(&c.RateLimitIdentity, "ratelimit-identity", "forwarded", "forwarded (first X-Forwarded-For entry, then peer; clients can choose that entry) | resolved (trusted-hop client ip, use in production)")
	fs.DurationVar(&c.RateLimitSweepInterval, "ratelimit-sweep-interval", 15*time.Minute, "how often stale rate limit counters are evicted")
	fs.DurationVar(&c.RateLimitRetention, "ratelimit-retention", time.Hour, "age after which a rate limit counter is evicted")
	fs.Float64Var(&c.FloodRate, "flood-rate", 20, "per-IP requests per second across all routes")
	fs.IntVar(&c.FloodBurst, "flood-burst", 60, "per-IP burst across all routes")
}

// FillFromEnv sets every flag not given on the command line from its
// environment variable, "foo-bar" reads PREFIX_FOO_BAR. Command line wins over
// env, env wins over the default. Invalid env values are reported through logf
// and leave the flag untouched.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case explicit[f.Name]:
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
		default:
			prev := f.Value.String()
			if err := fs.Set(f.Name, val); err != nil {
				_ = fs.Set(f.Name, prev)
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// problems collects validation failures, each names the env variable to fix
type problems []error

func (p *problems) addf(format string, args ...any) { *p = append(*p, fmt.Errorf(format, args...)) }

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		p.addf(format, args...)
	}
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// isURL requires a scheme and host
func isURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	return u, err == nil && u.Scheme != "" && u.Host != ""
}

// Validate reports every invalid field at once, joined, or nil
func Validate(c App) error {
	var p problems

	p.check(validPort(c.HTTPPort), "invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	p.check(validPort(c.AdminPort), "invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	p.check(c.AdminPort != c.HTTPPort, "ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		p.addf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			p.addf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err)
		}
	}
	if _, err := log.ParseBackend(c.LogBackend); err != nil {
		p.addf("invalid LOG_BACKEND %q: %w", c.LogBackend, err)
	}
	p.check(!c.IncludeErrorLinks || (c.MaxErrorLinks >= 1 && c.MaxErrorLinks <= 64),
		"MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)

	p.check(c.TraceSample >= 0 && c.TraceSample <= 1, "invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	if c.EnableTracing {
		// the grpc exporter wants host:port, no scheme
		if c.OTLPEndpoint == "" {
			p.addf("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			p.addf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			p.addf("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if _, ok := isURL(c.PyroServer); !ok {
			p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		p.check(c.PyroTenantID != "", "PYRO_TENANT required when ENABLE_PYROSCOPE=true")
	}

	// CORS compares origins, scheme://host[:port] with no path
	if u, ok := isURL(c.FrontendURL); !ok {
		p.addf("FRONTEND_URL must be an origin like https://example.com (got %q)", c.FrontendURL)
	} else {
		p.check(u.Path == "" || u.Path == "/", "FRONTEND_URL must not have a path (got %q)", c.FrontendURL)
	}
	p.check(strings.TrimSpace(c.Environment) != "", "ENVIRONMENT is required")
	p.check(c.TrustedProxyHops >= 0 && c.TrustedProxyHops <= 10, "TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops)

	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "libsql", "sqlite", "sqlite3", "pgx", "postgres", "postgresql":
	default:
		p.addf("invalid DB_DRIVER %q (libsql|pgx)", c.DBDriver)
	}
	p.check(strings.TrimSpace(c.DBURL) != "", "DATABASE_URL is required")

	p.check(c.AdminAPIKey == "" || c.AdminAPIKeySSMParam == "", "ADMIN_API_KEY and ADMIN_API_KEY_SSM_PARAM are mutually exclusive")
	p.check(c.AdminAPIKeySSMParam == "" || strings.HasPrefix(c.AdminAPIKeySSMParam, "/"),
		"ADMIN_API_KEY_SSM_PARAM must be a path starting with / (got %q)", c.AdminAPIKeySSMParam)

	p.check(c.RateLimitIdentity == "forwarded" || c.RateLimitIdentity == "resolved",
		"invalid RATELIMIT_IDENTITY %q (forwarded|resolved)", c.RateLimitIdentity)
	p.check(c.RateLimitSweepInterval > 0, "RATELIMIT_SWEEP_INTERVAL must be positive (got %s)", c.RateLimitSweepInterval)
	p.check(c.RateLimitRetention > 0, "RATELIMIT_RETENTION must be positive (got %s)", c.RateLimitRetention)
	p.check(c.FloodRate > 0, "FLOOD_RATE must be positive (got %g)", c.FloodRate)
	p.check(c.FloodBurst >= 1, "FLOOD_BURST must be at least 1 (got %d)", c.FloodBurst)

	return errors.Join(p...)
}
