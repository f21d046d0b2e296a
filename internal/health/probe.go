package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// DefaultPingTimeout bounds a dependency ping when Ping is given no timeout
const DefaultPingTimeout = 500 * time.Millisecond

// Probe reports nil when healthy, the error text is served as the reason
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// All runs every probe and joins the failures, so a readiness response names
// each dependency that is down. nil probes are skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Ping gives a dependency check its own deadline and prefixes failures with name
func Ping(name string, timeout time.Duration, ping func(context.Context) error) CheckFunc {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	return func(ctx context.Context) error {
		if ping == nil {
			return xerrors.Newf("%s: not configured", name)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return xerrors.Wrap(ping(ctx), name)
	}
}

// ShutdownGate fails readiness from the moment shutdown begins so the load
// balancer drains this instance before listeners close. The zero value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate, an empty reason reads as "draining"
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return errors.New(*r)
		}
		return nil
	}
}
