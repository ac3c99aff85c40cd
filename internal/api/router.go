package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/medquill/medquill/pipeline/internal/api/handlers"
	"github.com/medquill/medquill/pipeline/internal/api/middleware"
	"github.com/medquill/medquill/pipeline/internal/auth"
	"github.com/medquill/medquill/pipeline/internal/config"
)

// NewRouter creates the HTTP router with all API routes. Health and
// version stay open; everything under /api/v1 is behind the key guard.
func NewRouter(cfg *config.Config, h *handlers.Handlers, guard *auth.APIKeys) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if guard != nil {
			r.Use(guard.Middleware)
		}

		r.Post("/generate", h.Generate)

		r.Route("/quality", func(r chi.Router) {
			r.Post("/validate", h.ValidateContent)
		})

		r.Post("/refine", h.RefinePrompt)

		r.Route("/models", func(r chi.Router) {
			r.Get("/cost", h.GetCostSummary)
			r.Get("/health", h.ProviderHealth)
		})

		r.Get("/events", h.ListEvents)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version":    cfg.Version,
			"governance": cfg.Pipeline.Governance,
		})
	}
}
