// Package httpapi provides HTTP routing for the push subscription API.
package httpapi

import (
	"net/http"
)

// Router wraps the HTTP mux and provides route configuration.
type Router struct {
	mux      *http.ServeMux
	handlers *Handlers
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handlers) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: h,
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/v1/push/subscribe", methodHandler(http.MethodPost, r.handlers.Subscribe))
	r.mux.HandleFunc("/api/v1/push/unsubscribe", methodHandler(http.MethodPost, r.handlers.Unsubscribe))
	r.mux.HandleFunc("/api/v1/push/status", methodHandler(http.MethodGet, r.handlers.Status))
	r.mux.HandleFunc("/api/v1/push/config", methodHandler(http.MethodGet, r.handlers.Config))
	r.mux.HandleFunc("/api/v1/push/test", methodHandler(http.MethodPost, r.handlers.TestPush))
	r.mux.HandleFunc("/api/v1/incidents/latest", methodHandler(http.MethodGet, r.handlers.LatestIncidents))
	r.mux.HandleFunc("/health", methodHandler(http.MethodGet, r.handlers.Health))
}

// methodHandler restricts a handler to one HTTP method.
func methodHandler(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
	}
}

// Handler returns the fully configured handler with middleware applied.
func (r *Router) Handler() http.Handler {
	return corsMiddleware(r.mux)
}
