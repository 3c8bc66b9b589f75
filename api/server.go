/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the desktop/web frontend

ROUTE GROUPS:
  /api/days/*        Day views and summaries
  /api/slices/*      Slice edits
  /api/tracking/*    Start/stop/current
  /api/away          Away reconciliation
  /api/work-items/*  Work items
  /api/scenarios/*   Demo data

SECURITY NOTE:
  No authentication middleware. The server is meant to listen on localhost
  next to a single user's tracker.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/timeline/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins feeds the CORS middleware.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/days/{date}", func(r chi.Router) {
			r.Get("/", h.GetDay)
			r.Get("/summary", h.GetSummary)
		})

		r.Route("/slices", func(r chi.Router) {
			r.Post("/", h.ProposeSlice)
			r.Put("/{id}", h.MoveSlice)
			r.Patch("/{id}", h.EditSlice)
			r.Delete("/{id}", h.DeleteSlice)
		})

		r.Route("/tracking", func(r chi.Router) {
			r.Post("/start", h.StartTracking)
			r.Post("/stop", h.StopTracking)
			r.Get("/current", h.GetCurrent)
		})

		r.Post("/away", h.ReconcileAway)

		r.Route("/work-items", func(r chi.Router) {
			r.Get("/", h.ListWorkItems)
			r.Post("/", h.SaveWorkItem)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
