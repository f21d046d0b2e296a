package sitehttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/splash-api/internal/version"
)

// helpers

var (
	started = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now     = started.Add(90*time.Minute + 500*time.Millisecond)
)

func newTestRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	New(opts).RegisterRoutes(r)
	return r
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode: %v\nraw: %s", err, rec.Body.String())
	}
}

// New

func TestNew_Defaults(t *testing.T) {
	rt := New(Options{})
	if rt.env != "development" {
		t.Errorf("env = %q, want development", rt.env)
	}
	if rt.started.IsZero() {
		t.Error("started should default to now")
	}
}

// GET /

func TestHandleIndex(t *testing.T) {
	rec := serve(t, newTestRouter(Options{}), "GET", "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var idx Index
	decodeInto(t, rec, &idx)
	if idx.Message != "ChefMyKLove Splash Portfolio API" || idx.Version != version.APIVersion {
		t.Errorf("index = %+v", idx)
	}
	a := idx.Endpoints.Analytics
	if a.Visit != "POST /analytics/visit" || a.TimeSpent != "POST /analytics/time-spent" || a.Clear != "DELETE /analytics/clear" {
		t.Errorf("analytics endpoints = %+v", a)
	}
	if idx.Endpoints.Health != "GET /health" {
		t.Errorf("health = %q", idx.Endpoints.Health)
	}

	var raw map[string]map[string]map[string]string
	json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw["endpoints"]["analytics"]["timeSpent"] == "" {
		t.Error("timeSpent key missing from JSON")
	}
}

// GET /health

func TestHandleHealth(t *testing.T) {
	h := newTestRouter(Options{
		Environment: "production",
		Started:     started,
		Now:         func() time.Time { return now },
	})
	rec := serve(t, h, "GET", "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got Health
	decodeInto(t, rec, &got)
	if got.Status != "ok" || got.Environment != "production" {
		t.Errorf("health = %+v", got)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("timestamp = %s, want %s", got.Timestamp, now)
	}
	if got.Uptime != 5400.5 {
		t.Errorf("uptime = %v, want 5400.5", got.Uptime)
	}
}

func TestHandleHealth_WrongMethodIs404(t *testing.T) {
	rec := serve(t, newTestRouter(Options{}), "POST", "/health")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// fallbacks

func TestNotFound_JSON(t *testing.T) {
	rec := serve(t, newTestRouter(Options{}), "GET", "/nonexistent/path")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var nf NotFound
	decodeInto(t, rec, &nf)
	if nf.Error != "Not Found" || nf.Path != "/nonexistent/path" || nf.Message != "The requested endpoint does not exist" {
		t.Errorf("body = %+v", nf)
	}
}

func TestNotFound_AllMethods(t *testing.T) {
	h := newTestRouter(Options{})
	for _, m := range []string{"GET", "POST", "PUT", "DELETE", "PATCH"} {
		if rec := serve(t, h, m, "/nope"); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", m, rec.Code)
		}
	}
}

func TestRegisterRoutes_ExplicitRouteTakesPrecedence(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/analytics/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	New(Options{}).RegisterRoutes(r)

	if rec := serve(t, r, "GET", "/analytics/stats"); rec.Code != http.StatusTeapot {
		t.Fatalf("explicit route: status = %d, want 418", rec.Code)
	}
	// method mismatch on a registered route gets the JSON 404 body
	rec := serve(t, r, "POST", "/analytics/stats")
	var nf NotFound
	decodeInto(t, rec, &nf)
	if rec.Code != http.StatusNotFound || nf.Path != "/analytics/stats" {
		t.Fatalf("method mismatch: %d %+v", rec.Code, nf)
	}
}
