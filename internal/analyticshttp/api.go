// Package analyticshttp serves the /analytics API: beacon writes from the
// portfolio frontend plus the key-protected admin reads and cleanup.
package analyticshttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/splash-api/internal/analytics"
	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/ratelimit"
)

// Store is the slice of analytics.Store the handlers use
type Store interface {
	RecordVisit(ctx context.Context, v analytics.Visit, now time.Time) (analytics.Recorded, error)
	RecordClick(ctx context.Context, c analytics.Click, now time.Time) (analytics.Recorded, error)
	RecordTimeSpent(ctx context.Context, ts analytics.TimeSpent, now time.Time) (analytics.Recorded, error)
	Stats(ctx context.Context, now time.Time) (analytics.Stats, error)
	Live(ctx context.Context, now time.Time) ([]analytics.LiveVisit, error)
	Clear(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error)
}

// Event kinds passed to OnEvent
const (
	EventVisit     = "visit"
	EventClick     = "click"
	EventTimeSpent = "time_spent"
	EventClear     = "clear"
)

// DefaultClearDays is used when DELETE /clear has no olderThanDays
const DefaultClearDays = 90

type Options struct {
	Store    Store
	Logger   log.Logger
	AdminKey string

	// Limiters per route group, nil leaves the group ungated
	Beacon  *ratelimit.Limiter
	Admin   *ratelimit.Limiter
	Cleanup *ratelimit.Limiter

	// AddrSources resolves the visitor IP stored with a visit, default ratelimit.DefaultAddrSources
	AddrSources []ratelimit.AddrSource

	// OnEvent is called after every write attempt, used for prometheus counters
	OnEvent func(kind string, err error)

	Now func() time.Time
}

type API struct {
	store    Store
	adminKey string
	beacon   *ratelimit.Limiter
	admin    *ratelimit.Limiter
	cleanup  *ratelimit.Limiter
	sources  []ratelimit.AddrSource
	onEvent  func(kind string, err error)
	now      func() time.Time
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AddrSources) == 0 {
		opts.AddrSources = ratelimit.DefaultAddrSources
	}
	if opts.AdminKey == "" {
		opts.Logger.Warn(context.Background(), "admin api key not configured, admin analytics routes will answer 500")
	}
	return &API{
		store:    opts.Store,
		adminKey: opts.AdminKey,
		beacon:   opts.Beacon,
		admin:    opts.Admin,
		cleanup:  opts.Cleanup,
		sources:  opts.AddrSources,
		onEvent:  opts.OnEvent,
		now:      opts.Now,
	}
}

// RegisterRoutes mounts everything under /analytics. Rate limits run before the
// key check so guessing keys burns quota like any other request.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("analytics.beacon"), gate(api.beacon))
			r.Post("/visit", api.HandleVisit)
			r.Post("/click", api.HandleClick)
			r.Post("/time-spent", api.HandleTimeSpent)
		})
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("analytics.admin"), gate(api.admin), httpmw.APIKey(api.adminKey))
			r.Get("/stats", api.HandleStats)
			r.Get("/live", api.HandleLive)
		})
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("analytics.cleanup"), gate(api.cleanup), httpmw.APIKey(api.adminKey))
			r.Delete("/clear", api.HandleClear)
		})
	})
}

func gate(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}

func (api *API) record(kind string, err error) {
	if api.onEvent != nil {
		api.onEvent(kind, err)
	}
}

// fail logs err and writes the generic 500 body, store errors never reach the client
func (api *API) fail(ctx context.Context, w http.ResponseWriter, err error, errMsg string) {
	log.FromContext(ctx).Error(ctx, err, strings.ToLower(errMsg))
	httpmw.WriteError(w, http.StatusInternalServerError, errMsg, "")
}

func badRequest(w http.ResponseWriter, message string) {
	httpmw.WriteError(w, http.StatusBadRequest, "Invalid request", message)
}

// decodeFailed answers 413 when MaxBody cut the body off, 400 otherwise
func decodeFailed(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		httpmw.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
		return
	}
	badRequest(w, "request body must be a JSON object")
}

// decodeBody decodes a JSON object, allowEmpty treats a missing body as {}
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
