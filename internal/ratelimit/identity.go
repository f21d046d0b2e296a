package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/keithlinneman/splash-api/internal/httpmw"
)

// UnknownAddr is the shared identity for requests with no resolvable address.
// Every such client lands in the same bucket per route.
const UnknownAddr = "unknown"

// AddrSource returns a client address for r, or "" if it has nothing to offer
type AddrSource func(r *http.Request) string

// ForwardedFor returns the first (left-most) X-Forwarded-For entry.
// Only meaningful when httpmw.ClientIP has already stripped the header from untrusted peers.
// Proxies append to the header, so the left-most entry is whatever the client sent
// and a client behind a trusted proxy can pick its own bucket. Production
// deployments should use ResolvedClientIP instead.
func ForwardedFor(r *http.Request) string {
	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return ""
	}
	first, _, _ := strings.Cut(xf, ",")
	return strings.TrimSpace(first)
}

// PeerAddr returns the transport peer address without the port
func PeerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// ResolvedClientIP returns the address picked by the httpmw.ClientIP middleware
func ResolvedClientIP(r *http.Request) string {
	return httpmw.ClientIPFromContext(r.Context())
}

// DefaultAddrSources is forwarded-for, then peer address
var DefaultAddrSources = []AddrSource{ForwardedFor, PeerAddr}

// Identify walks sources in order and returns the first non-empty address.
// ok is false when every source came up empty and the UnknownAddr sentinel was returned.
func Identify(r *http.Request, sources ...AddrSource) (addr string, ok bool) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if a := src(r); a != "" {
			return a, true
		}
	}
	return UnknownAddr, false
}
