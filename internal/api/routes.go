package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router. requestTimeout must cover
// the service's polling budget or triggers are cut off mid-poll.
func NewRouter(handlers *Handlers, authMiddleware *AuthMiddleware, loggingMiddleware *LoggingMiddleware, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - ORDER MATTERS!
	r.Use(middleware.RequestID)      // Generate request ID first
	r.Use(middleware.RealIP)         // Extract real IP
	r.Use(loggingMiddleware.Handler) // Add logger to context with request ID
	r.Use(middleware.Recoverer)      // Panic recovery
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", HeaderSubmissionID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", handlers.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Direct trigger
		r.Post("/pipeline-runs", handlers.TriggerPipelineRun)

		// Catalog
		r.Get("/pipelines", handlers.ListPipelines)
		r.Post("/pipelines/{pipeline_id}/runs", handlers.TriggerCatalogRun)

		// Jobs; the wildcard is the full resource name
		r.Post("/pipeline-jobs/cancel", handlers.CancelPipelineJob)
		r.Get("/pipeline-jobs/*", handlers.GetPipelineJob)

		// Submissions
		r.Get("/submissions/{submission_id}", handlers.GetSubmission)
	})

	return r
}
