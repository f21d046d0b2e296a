package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig parses args on a fresh FlagSet so tests never touch flag.CommandLine
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log-json", c.LogJSON, true},
		{"log-level", c.LogLevel, "info"},
		{"log-backend", c.LogBackend, "slog"},
		{"http-port", c.HTTPPort, 3002},
		{"admin-port", c.AdminPort, 9000},
		{"enable-pprof", c.EnablePprof, true},
		{"enable-tracing", c.EnableTracing, false},
		{"environment", c.Environment, "development"},
		{"frontend-url", c.FrontendURL, "http://localhost:8000"},
		{"trusted-proxy-hops", c.TrustedProxyHops, 1},
		{"db-driver", c.DBDriver, "libsql"},
		{"database-url", c.DBURL, "file:./data/analytics.db"},
		{"ratelimit-identity", c.RateLimitIdentity, "forwarded"},
		{"ratelimit-sweep-interval", c.RateLimitSweepInterval, 15 * time.Minute},
		{"ratelimit-retention", c.RateLimitRetention, time.Hour},
		{"flood-burst", c.FloodBurst, 60},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("-%s default = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if err := Validate(c); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey(EnvPrefix, "ratelimit-sweep-interval"); got != "SPLASH_RATELIMIT_SWEEP_INTERVAL" {
		t.Fatalf("EnvKey = %q", got)
	}
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv("SPLASH_HTTP_PORT", "4000")
	t.Setenv("SPLASH_FRONTEND_URL", "https://chefmyklove.com")
	t.Setenv("SPLASH_RATELIMIT_RETENTION", "2h")
	t.Setenv("SPLASH_FLOOD_RATE", "not-a-number")
	t.Setenv("SPLASH_LOG_LEVEL", "warn")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-log-level=debug"}); err != nil {
		t.Fatal(err)
	}
	var logged []string
	FillFromEnv(fs, EnvPrefix, func(f string, args ...any) { logged = append(logged, fmt.Sprintf(f, args...)) })

	if c.HTTPPort != 4000 || c.FrontendURL != "https://chefmyklove.com" || c.RateLimitRetention != 2*time.Hour {
		t.Fatalf("env not applied: %+v", c)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("cli flag should beat env, got %q", c.LogLevel)
	}
	if c.FloodRate != 20 {
		t.Fatalf("invalid env should keep the default, got %g", c.FloodRate)
	}

	joined := strings.Join(logged, "\n")
	if len(logged) != 2 || !strings.Contains(joined, "overrides env SPLASH_LOG_LEVEL") || !strings.Contains(joined, "ignoring invalid env SPLASH_FLOOD_RATE") {
		t.Fatalf("log lines = %q", logged)
	}
}

func TestFillFromEnv_NilLogf(t *testing.T) {
	t.Setenv("SPLASH_ADMIN_PORT", "nine")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	FillFromEnv(fs, EnvPrefix, nil)
	if c.AdminPort != 9000 {
		t.Fatalf("admin port = %d", c.AdminPort)
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-http-port=0"}, "invalid HTTP_PORT"},
		{[]string{"-admin-port=70000"}, "invalid ADMIN_PORT"},
		{[]string{"-admin-port=3002"}, "ADMIN_PORT and HTTP_PORT must differ"},
		{[]string{"-log-level=nope"}, "invalid LOG_LEVEL"},
		{[]string{"-stacktrace-level=alsonope"}, "invalid STACKTRACE_LEVEL"},
		{[]string{"-log-backend=logrus"}, "invalid LOG_BACKEND"},
		{[]string{"-max-error-links=0"}, "MAX_ERROR_LINKS"},
		{[]string{"-trace-sample=2.0"}, "invalid TRACE_SAMPLE"},
		{[]string{"-enable-tracing=true"}, "OTLP_ENDPOINT required"},
		{[]string{"-enable-tracing=true", "-otlp-endpoint=otel"}, "OTLP_ENDPOINT must be host:port"},
		{[]string{"-enable-pyroscope=true", "-pyro-tenant=t"}, "PYRO_SERVER required"},
		{[]string{"-enable-pyroscope=true", "-pyro-server=not-a-url", "-pyro-tenant=t"}, "PYRO_SERVER must be a URL"},
		{[]string{"-enable-pyroscope=true", "-pyro-server=https://pyro:4040"}, "PYRO_TENANT required"},
		{[]string{"-frontend-url=localhost"}, "FRONTEND_URL must be an origin"},
		{[]string{"-frontend-url=https://splash.example/app"}, "FRONTEND_URL must not have a path"},
		{[]string{"-environment= "}, "ENVIRONMENT is required"},
		{[]string{"-trusted-proxy-hops=-1"}, "TRUSTED_PROXY_HOPS"},
		{[]string{"-db-driver=mysql"}, "invalid DB_DRIVER"},
		{[]string{"-database-url="}, "DATABASE_URL is required"},
		{[]string{"-admin-api-key=k", "-admin-api-key-ssm-param=/splash/key"}, "mutually exclusive"},
		{[]string{"-admin-api-key-ssm-param=relative"}, "ADMIN_API_KEY_SSM_PARAM must be a path"},
		{[]string{"-ratelimit-identity=cookie"}, "invalid RATELIMIT_IDENTITY"},
		{[]string{"-ratelimit-sweep-interval=0s"}, "RATELIMIT_SWEEP_INTERVAL must be positive"},
		{[]string{"-ratelimit-retention=-1m"}, "RATELIMIT_RETENTION must be positive"},
		{[]string{"-flood-rate=0"}, "FLOOD_RATE"},
		{[]string{"-flood-burst=0"}, "FLOOD_BURST"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			wantErrContains(t, Validate(newTestConfig(t, tt.args)), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Validate(newTestConfig(t, []string{"-http-port=0", "-db-driver=mysql", "-flood-burst=0"}))
	for _, sub := range []string{"invalid HTTP_PORT", "invalid DB_DRIVER", "FLOOD_BURST"} {
		wantErrContains(t, err, sub)
	}
}
