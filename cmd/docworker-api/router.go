// Package main provides the docworker API server entrypoint.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Dropicx/docworker/cmd/docworker-api/handlers"
	"github.com/Dropicx/docworker/internal/config"
)

// NewRouter wires all routes and global middleware.
func NewRouter(cfg *config.Config, documents *handlers.DocumentHandler, admin *handlers.AdminHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"docworker"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documents.Upload)
			r.Get("/{documentID}", documents.Get)
			r.Get("/{documentID}/artifacts", documents.Artifacts)
		})

		r.Get("/sessions/{sessionID}/logs", documents.SessionLogs)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/steps", admin.ListSteps)
			r.Put("/steps", admin.UpsertStep)
			r.Get("/prompts", admin.ListPrompts)
			r.Post("/prompts", admin.PublishPrompt)
			r.Get("/quality/threshold", admin.GetThreshold)
			r.Put("/quality/threshold", admin.SetThreshold)
		})
	})

	return r
}
