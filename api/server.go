/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique ID per request for tracing
  4. CORS:       cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/accounts/*      account lifecycle, points, history
  /api/transactions/*  reversals
  /api/activity        recent activity feed
  /api/stats           aggregate totals
  /api/actions|prizes  catalog CRUD
  /api/regulations     program regulations text

SECURITY NOTE:
  No authentication middleware. The engine stores credentials opaquely
  and never verifies them; auth belongs to the layer in front of it.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Get("/{id}/history", h.AccountHistory)
			r.Post("/{id}/points", h.ApplyPoints)
			r.Post("/{id}/setup", h.CompleteSetup)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/{id}/reverse", h.ReverseTransaction)
		})

		r.Get("/activity", h.RecentActivity)
		r.Get("/stats", h.Stats)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", h.ListActions)
			r.Post("/", h.SaveAction)
			r.Delete("/{id}", h.DeleteAction)
		})

		r.Route("/prizes", func(r chi.Router) {
			r.Get("/", h.ListPrizes)
			r.Post("/", h.SavePrize)
			r.Delete("/{id}", h.DeletePrize)
		})

		r.Route("/regulations", func(r chi.Router) {
			r.Get("/", h.GetRegulations)
			r.Put("/", h.SaveRegulations)
		})
	})

	return r
}
