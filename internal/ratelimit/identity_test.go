package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keithlinneman/splash-api/internal/httpmw"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		wantAddr   string
		wantOK     bool
	}{
		{"forwarded first entry", "203.0.113.9, 10.0.0.1", "10.0.0.1:4444", "203.0.113.9", true},
		{"forwarded single", "198.51.100.7", "10.0.0.1:4444", "198.51.100.7", true},
		{"forwarded padded", "  198.51.100.7  ,x", "10.0.0.1:4444", "198.51.100.7", true},
		{"peer with port", "", "192.0.2.5:1234", "192.0.2.5", true},
		{"peer ipv6", "", "[2001:db8::1]:80", "2001:db8::1", true},
		{"peer without port", "", "192.0.2.5", "192.0.2.5", true},
		{"nothing", "", "", UnknownAddr, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			addr, ok := Identify(r, DefaultAddrSources...)
			if addr != tt.wantAddr || ok != tt.wantOK {
				t.Fatalf("Identify = (%q, %v), want (%q, %v)", addr, ok, tt.wantAddr, tt.wantOK)
			}
		})
	}
}

func TestIdentify_ResolvedClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1"
	r = r.WithContext(httpmw.WithClientIP(r.Context(), "203.0.113.50"))

	addr, ok := Identify(r, ResolvedClientIP, PeerAddr)
	if !ok || addr != "203.0.113.50" {
		t.Fatalf("Identify = (%q, %v)", addr, ok)
	}
}

func TestIdentify_ForgedLeftmostEntry(t *testing.T) {
	var forwarded, resolved string
	h := httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: 1})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded, _ = Identify(r, DefaultAddrSources...)
			resolved, _ = Identify(r, ResolvedClientIP, PeerAddr)
		}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:4444"
	// client sent the first entry, our proxy appended the real peer
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if forwarded != "1.2.3.4" {
		t.Errorf("forwarded identity = %q, want client-chosen 1.2.3.4", forwarded)
	}
	if resolved != "203.0.113.9" {
		t.Errorf("resolved identity = %q, want 203.0.113.9", resolved)
	}
}

func TestIdentify_SkipsNilSources(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:9"
	addr, ok := Identify(r, nil, PeerAddr)
	if !ok || addr != "192.0.2.1" {
		t.Fatalf("Identify = (%q, %v)", addr, ok)
	}
}
