package httpapi

import (
	"net/http"
	"time"
)

// NewServer wraps handler with the listener timeouts used in production.
// WriteTimeout stays zero so viewer sockets are not cut off.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
