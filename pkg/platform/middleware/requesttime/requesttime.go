// Package requesttime pins one "now" per HTTP request. All operations within
// a single request observe the same timestamp, so audit entries, domain
// timestamps, and recurrence window calculations agree.
package requesttime

import (
	"net/http"
	"time"

	"conforma/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context for consistent time references throughout the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
