package opshttp

import (
	"net/http"
	"net/netip"

	"github.com/keithlinneman/splash-api/internal/log"
)

// requireNonPublicNetwork admits loopback, private and link-local peers only.
// The ops port exposes pprof and every metric, so a misrouted public request
// gets a bare 403.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !internalPeer(r.RemoteAddr) {
			L.Warn(r.Context(), "ops request rejected", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// internalPeer reports whether host:port names a non-public host, anything
// unparseable is treated as public
func internalPeer(remote string) bool {
	ap, err := netip.ParseAddrPort(remote)
	if err != nil {
		return false
	}
	a := ap.Addr().Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast()
}
