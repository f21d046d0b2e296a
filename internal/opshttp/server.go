// Package opshttp runs the internal listener for metrics, probes and pprof.
// It is kept off the public port so scrapes and profiles never pass the
// public middleware or count against client rate limits.
package opshttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/keithlinneman/splash-api/internal/health"
	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// NewHandler builds the ops router, wrapped in the private network guard
// unless AllowPublic is set
func NewHandler(L log.Logger, opts Options) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	r := chi.NewRouter()

	healthz := health.HealthzHandler(opts.Health)
	readyz := health.ReadyzHandler(opts.Readiness)
	for _, p := range []string{"/-/healthy", "/healthz"} {
		r.Method(http.MethodGet, p, healthz)
		r.Method(http.MethodHead, p, healthz)
	}
	for _, p := range []string{"/-/ready", "/readyz"} {
		r.Method(http.MethodGet, p, readyz)
		r.Method(http.MethodHead, p, readyz)
	}

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	if opts.AllowPublic {
		return r
	}
	return requireNonPublicNetwork(L, r)
}

// Start serves NewHandler on opts.Port and returns an idempotent stop
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if opts == nil {
		opts = &Options{}
	}
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	// a CPU profile samples for 30s by default
	writeTimeout := 10 * time.Second
	if opts.EnablePprof {
		writeTimeout = 65 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(L, *opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on ops addr %s", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr, "pprof", opts.EnablePprof)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var (
		once    sync.Once
		stopErr error
	)
	return func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}, nil
}
