/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for desktop/web clients

ROUTE GROUPS:
  /api/fuel/*       Consumption calculator
  /api/trips/*      Trip documents + chain cascade
  /api/movements/*  Stock movements + posting
  /api/drivers/*    Drivers, balances, snapshots
  /api/periods/*    Period locks
  /api/items/*      Stock items
  /api/vehicles/*   Vehicles + bulk recompute
  /api/audit        Audit trail

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
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Fuel calculator
		r.Post("/fuel/calculate", h.Calculate)

		// Trip documents
		r.Route("/trips", func(r chi.Router) {
			r.Get("/", h.ListTrips)
			r.Post("/", h.SaveTrip)
			r.Get("/{id}", h.GetTrip)
			r.Delete("/{id}", h.DeleteTrip)
			r.Post("/{id}/post", h.PostTrip)
			r.Post("/{id}/unpost", h.UnpostTrip)
		})

		// Stock movements
		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.ListMovements)
			r.Post("/", h.SaveMovement)
			r.Get("/{id}", h.GetMovement)
			r.Delete("/{id}", h.DeleteMovement)
			r.Post("/{id}/post", h.PostMovement)
			r.Post("/{id}/unpost", h.UnpostMovement)
		})
		r.Post("/adjustments", h.CreateAdjustment)

		// Drivers and balances
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Post("/", h.SaveDriver)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/snapshots", h.ListSnapshots)
			r.Post("/{id}/reset", h.ResetBalance)
		})
		r.Post("/snapshots/regenerate", h.RegenerateSnapshots)

		// Period locks
		r.Route("/periods", func(r chi.Router) {
			r.Get("/locked", h.IsPeriodLocked)
			r.Get("/locks", h.ListLocks)
			r.Post("/locks", h.LockPeriod)
			r.Post("/locks/{id}/verify", h.VerifyLock)
			r.Delete("/locks/{id}", h.UnlockPeriod)
		})

		// Master data
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.SaveItem)
		})
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.ListVehicles)
			r.Post("/", h.SaveVehicle)
			r.Post("/{id}/recalculate", h.RecalculateVehicle)
		})

		// Audit trail
		r.Get("/audit", h.QueryAudit)
	})

	return r
}
