// Package requesttime pins a single "now" for the whole request so audit
// entries, expiry computations and status snapshots agree on the time.
package requesttime

import (
	"net/http"
	"time"

	"credlife/pkg/requestcontext"
)

// Middleware captures the wall-clock time at the start of the request.
// Handlers and services read it back with requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware reading the time from clock. Test harnesses use it
// to move time forward between requests.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
