package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/model-relay/model-relay/app"
	"github.com/model-relay/model-relay/handlers"
	"github.com/model-relay/model-relay/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	completionHandler := handlers.NewCompletionHandler(deps.Dispatcher, deps.Logger)
	providerHandler := handlers.NewProviderHandler(deps.Registry, deps.Usage, deps.Logger)
	healthHandler := newHealthHandler(deps)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/completions", completionHandler.HandleCompletion)
		r.Post("/completions/batch", completionHandler.HandleBatch)
		r.Post("/translations", completionHandler.HandleTranslation)

		r.Get("/providers", providerHandler.HandleList)
		r.Get("/usage/status", providerHandler.HandleUsageStatus)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// newHealthHandler avoids handing a typed nil DB into the checker interface
func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var checker handlers.DatabaseChecker
	if deps.DB != nil {
		checker = deps.DB
	}
	return handlers.NewHealthHandler(checker, deps.Registry, deps.Logger)
}
