package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/llm-job-gateway/app"
	"github.com/upb/llm-job-gateway/handlers"
	"github.com/upb/llm-job-gateway/middleware"
	"github.com/upb/llm-job-gateway/utils"
)

// requestTimeout bounds synchronous handlers. Long generations belong in jobs.
const requestTimeout = 5 * time.Minute

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Credential)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.CredentialHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck())
	r.Get("/readyz", handlers.ReadinessCheck(deps.Gateway))

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	providerHandler := handlers.NewProviderHandler(deps.Gateway, deps.Logger)
	jobHandler := handlers.NewJobHandler(deps.Gateway, deps.Logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerHandler.HandleList)
			r.Post("/probe", providerHandler.HandleProbeAll)
			r.Post("/{id}/probe", providerHandler.HandleProbe)
			r.Post("/{id}/generate", providerHandler.HandleGenerate)
			r.Post("/{id}/estimate", providerHandler.HandleEstimate)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.HandleList)
			r.Post("/", jobHandler.HandleSubmit)
			r.Get("/kinds", jobHandler.HandleKinds)
			r.Get("/{id}", jobHandler.HandleStatus)
			r.Get("/{id}/result", jobHandler.HandleResult)
			r.Post("/{id}/cancel", jobHandler.HandleCancel)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "bad_request", "method not allowed", nil)
	})

	return r
}
