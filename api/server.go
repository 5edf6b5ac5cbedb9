/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/stats             Headline rollup
  /api/mps/*             MP listing, profiles
  /api/vendors/*         Vendor listing, profiles
  /api/states/*          State listing, profiles
  /api/categories/*      Activity-category profiles
  /api/analytics/*       Top/bottom and trend series
  /api/admin/*           Dataset refresh and job polling
  /api/search            MP/constituency lookup

SECURITY NOTE:
  No authentication middleware currently. All read endpoints are public
  disclosure data; the admin group should sit behind a reverse proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/search", h.Search)

		r.Route("/mps", func(r chi.Router) {
			r.Get("/", h.ListMPs)
			r.Get("/{name}", h.GetMP)
		})

		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", h.ListVendors)
			r.Get("/{name}", h.GetVendor)
		})

		r.Route("/states", func(r chi.Router) {
			r.Get("/", h.ListStates)
			r.Get("/{name}", h.GetState)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/{name}", h.GetCategory)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/top-bottom", h.GetTopBottom)
			r.Get("/trends", h.GetTrends)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.TriggerRefresh)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
		})
	})

	return r
}
