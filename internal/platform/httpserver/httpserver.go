// Package httpserver constructs the process-wide HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New returns the server main runs. Handlers carry their own deadlines via
// request context, so only the header read is bounded here.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
