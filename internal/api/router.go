package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/sessions", apiHandler.CreateSessionHandler)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/ask", apiHandler.AskHandler)
			r.Get("/transactions", apiHandler.ListTransactionsHandler)
			r.Get("/stats", apiHandler.StatsHandler)
			r.Get("/alerts", apiHandler.AlertsHandler)
			r.Get("/health", apiHandler.HealthScoreHandler)
			r.Get("/forecast", apiHandler.ForecastHandler)
			r.Get("/messages", apiHandler.ListMessagesHandler)
			r.Delete("/", apiHandler.DeleteSessionHandler)
		})
	})

	return r
}
