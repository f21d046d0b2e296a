package httpmw

import "net/http"

// No CSRF protection: beacons are anonymous JSON and admin calls authenticate
// with a header, never a cookie, so a cross-site form cannot act for anyone.

// apiSecurityHeaders suit a JSON API whose frontend lives on another origin
var apiSecurityHeaders = [...][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	// responses are data, never documents
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	// CORS decides who may read, CORP must not block the frontend
	{"Cross-Origin-Resource-Policy", "cross-origin"},
}

// SecurityHeaders sets the headers before next runs so error responses carry them too
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}
