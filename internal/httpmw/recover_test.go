package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecover_JSON500(t *testing.T) {
	l := newCaptureLogger()
	panics := 0
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("stats query exploded")
	}), RequestID(""), Recover(l, func() { panics++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics/stats", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	b := decodeErrorBody(t, rec)
	if b.Success || b.Error != "Internal Server Error" || b.Message != "An error occurred" {
		t.Fatalf("body = %+v", b)
	}
	if panics != 1 {
		t.Fatalf("onPanic calls = %d", panics)
	}

	e := l.entries()
	if len(e) != 1 || e[0].level != "error" {
		t.Fatalf("entries = %+v", e)
	}
	if !strings.Contains(e[0].err.Error(), "stats query exploded") {
		t.Errorf("err = %v", e[0].err)
	}
	if e[0].fields["path"] != "/analytics/stats" || e[0].fields["request_id"] == "" {
		t.Errorf("fields = %v", e[0].fields)
	}
}

func TestRecover_ErrorValueKept(t *testing.T) {
	l := newCaptureLogger()
	sentinel := errors.New("store closed")
	h := Recover(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic(sentinel) }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if !errors.Is(l.entries()[0].err, sentinel) {
		t.Fatalf("logged err %v does not wrap sentinel", l.entries()[0].err)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}

func TestRecover_PassThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Recover(nil, nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
