package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Liveness + component checks
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Display endpoints
		r.Route("/displays", func(r chi.Router) {
			r.Get("/", s.handleListDisplays)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDisplay)
				r.Post("/commands", s.handleDisplayCommand)
				r.Get("/history", s.handleDisplayHistory)
			})
		})

		// Group endpoints
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/{group}/commands", s.handleGroupCommand)
		})

		// Batch operation endpoints
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", s.handleListOperations)
			r.Get("/{id}", s.handleGetOperation)
		})

		// System info
		r.Get("/system/info", s.handleSystemInfo)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
