package httpapi

import (
	"net/http"
	"time"
)

// NewServer creates a new HTTP server with the router configured.
func NewServer(port string, h *Handlers) *http.Server {
	router := NewRouter(h)
	return &http.Server{
		Addr:         ":" + port,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
