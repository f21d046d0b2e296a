package httpmw

import (
	"crypto/subtle"
	"net/http"

	"github.com/keithlinneman/splash-api/internal/log"
)

// APIKeyHeader carries the admin secret
const APIKeyHeader = "X-API-Key"

// APIKey guards admin routes with a static shared secret.
// An empty key is a deployment error and every request gets 500 rather than being let through.
func APIKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := log.FromContext(ctx)

			if len(want) == 0 {
				l.Warn(ctx, "admin api key not configured", "path", r.URL.Path)
				WriteError(w, http.StatusInternalServerError, "Server configuration error", "")
				return
			}

			got := r.Header.Get(APIKeyHeader)
			if got == "" {
				WriteError(w, http.StatusUnauthorized, "API key required", "Please provide X-API-Key header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				l.Warn(ctx, "admin api key rejected", "path", r.URL.Path, "client_ip", ClientIPFromContext(ctx))
				WriteError(w, http.StatusForbidden, "Invalid API key", "The provided API key is not valid")
				return
			}

			l.Info(ctx, "admin api access", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
