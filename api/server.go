/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the coach dashboard

ROUTE GROUPS:
  /api/students/*       Roster, ledger, claims, badges, sprints per student
  /api/ledger           Multi-student batch append
  /api/claims/*         Claim reconciliation
  /api/badges/*         Rule management and sweeps
  /api/leaderboards/*   Ranked boards
  /api/stats/*          Performance stat definitions and values
  /api/skills/*         Skill attempt results
  /api/levels           Threshold table
  /api/sprints/*        Sprint cards and completion
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Put("/{id}", h.SaveStudent)
			r.Get("/{id}", h.GetStudent)
			r.Get("/{id}/totals", h.GetTotals)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Post("/{id}/recompute", h.Recompute)
			r.Post("/{id}/redeem", h.Redeem)
			r.Get("/{id}/unlocks/check", h.CheckUnlock)
			r.Get("/{id}/notifications", h.ListNotifications)
			r.Post("/{id}/claims", h.Claim)
			r.Post("/{id}/activity", h.AddActivity)
			r.Get("/{id}/badges", h.ListAwards)
			r.Get("/{id}/sprints", h.ListStudentSprints)
			r.Post("/{id}/sprints", h.AssignSprint)
		})

		r.Post("/ledger", h.AppendEntries)

		r.Route("/claims", func(r chi.Router) {
			r.Get("/unpaid", h.ListUnpaidClaims)
		})

		r.Route("/badges", func(r chi.Router) {
			r.Get("/rules", h.ListRules)
			r.Put("/rules/{id}", h.SaveRule)
			r.Post("/sweep", h.Sweep)
		})

		r.Get("/leaderboards/{metric}", h.GetLeaderboard)

		r.Route("/stats", func(r chi.Router) {
			r.Put("/{id}", h.SaveStat)
			r.Post("/{id}/values", h.RecordStatValue)
		})

		r.Post("/skills/{id}/results", h.RecordSkillResult)

		r.Get("/levels", h.GetLevels)
		r.Put("/levels", h.SaveLevels)

		r.Route("/sprints", func(r chi.Router) {
			r.Get("/{id}", h.GetSprint)
			r.Post("/{id}/complete", h.CompleteSprint)
			r.Put("/{id}/charged-days", h.SetChargedDays)
		})
	})

	return r
}
