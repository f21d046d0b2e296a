package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// Recover logs handler panics with a stack and serves a JSON 500.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
// onPanic may be nil, it is used to count panics.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				err = xerrors.WithStack(err)

				ctx := r.Context()
				logger.With(
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
					"client.address", ClientIPFromContext(ctx),
				).Error(ctx, err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An error occurred")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
