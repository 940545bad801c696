// Package api provides the HTTP API for the CityTransit operations engine.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/api/handler"
	"github.com/citytransit/opsengine/internal/api/middleware"
	"github.com/citytransit/opsengine/internal/auth"
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/history"
	"github.com/citytransit/opsengine/internal/occupancy"
	"github.com/citytransit/opsengine/internal/provider/resilience"
	"github.com/citytransit/opsengine/internal/sentiment"
	"github.com/citytransit/opsengine/internal/training"
)

// DefaultRateLimitPerMinute is the per-caller limit on /v1 routes.
const DefaultRateLimitPerMinute = 100

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Tokens validates bearer tokens on /v1 routes.
	Tokens middleware.TokenValidator

	// RateLimitPerMinute caps /v1 requests per caller.
	// Default: DefaultRateLimitPerMinute
	RateLimitPerMinute int

	RequireTLS bool

	Flags        *featureflags.Service
	Predictor    *demand.Predictor
	Clusterer    *clustering.Service
	Forecaster   *forecast.Service
	Sentiment    *sentiment.Service
	Occupancy    *occupancy.Service
	Orchestrator *training.Orchestrator

	// History serves rider trips for recommendations.
	History history.Source

	// Repository accepts uploaded history. Nil disables ingestion.
	Repository history.Repository

	// Registry reports guarded dependency health.
	Registry *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "citytransit-engine"
	}
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = DefaultRateLimitPerMinute
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	validator := handler.NewValidator()
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Predictor:    cfg.Predictor,
		Clusterer:    cfg.Clusterer,
		Forecaster:   cfg.Forecaster,
		Sentiment:    cfg.Sentiment,
		Occupancy:    cfg.Occupancy,
		Orchestrator: cfg.Orchestrator,
		Repository:   cfg.Repository,
		Registry:     cfg.Registry,
		Validator:    validator,
		Logger:       cfg.Logger,
	})
	mlHandler := handler.NewMLHandler(handler.MLHandlerConfig{
		Predictor: cfg.Predictor,
		Clusterer: cfg.Clusterer,
		History:   cfg.History,
		Validator: validator,
		Logger:    cfg.Logger,
	})
	dlHandler := handler.NewDLHandler(handler.DLHandlerConfig{
		Forecaster: cfg.Forecaster,
		Sentiment:  cfg.Sentiment,
		Occupancy:  cfg.Occupancy,
		Flags:      cfg.Flags,
		Validator:  validator,
	})
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags, validator, cfg.Logger)

	// Role guards
	staff := middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator)
	anyone := middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator, auth.RoleRider)
	admin := middleware.RequireRole(auth.RoleAdmin)

	// Rate limiters for expensive endpoint categories
	batchRateLimit := middleware.RateLimitByUser(middleware.BatchRateLimit)     // 30 req/min
	retrainRateLimit := middleware.RateLimitByUser(middleware.RetrainRateLimit) // 5 req/min

	// Probes (public)
	r.Get("/health", opsHandler.HealthCheck)
	r.Get("/ready", opsHandler.ReadinessCheck)

	// API v1 routes (authenticated)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Tokens))
		r.Use(middleware.RequireJSON)
		r.Use(middleware.RateLimitByUser(middleware.PerMinute(perMinute)))

		// Demand prediction and trip clustering
		r.Route("/ml", func(r chi.Router) {
			r.With(anyone).Get("/predict-demand/quick", mlHandler.QuickPredict)
			r.With(anyone).Get("/users/{userId}/recommendations", mlHandler.UserRecommendations)

			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Post("/predict-demand", mlHandler.PredictDemand)
				r.With(batchRateLimit).Post("/predict-demand/batch", mlHandler.PredictDemandBatch)
				r.With(batchRateLimit).Post("/clusters", mlHandler.Clusters)
				r.Get("/status", mlHandler.Status)
			})
		})

		// Forecasting, sentiment and occupancy
		r.Route("/dl", func(r chi.Router) {
			r.With(anyone).Post("/sentiment", dlHandler.Sentiment)
			r.With(anyone).Get("/sentiment/quick", dlHandler.QuickSentiment)

			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Post("/forecast", dlHandler.Forecast)
				r.Get("/forecast/quick", dlHandler.QuickForecast)
				r.With(batchRateLimit).Post("/sentiment/batch", dlHandler.SentimentBatch)
				r.Post("/occupancy", dlHandler.Occupancy)
				r.With(batchRateLimit).Post("/occupancy/batch", dlHandler.OccupancyBatch)
				r.Post("/occupancy/trend", dlHandler.OccupancyTrend)
				r.Get("/status", dlHandler.Status)
			})
		})

		// Operations
		r.Route("/ops", func(r chi.Router) {
			r.With(staff).Get("/status", opsHandler.SystemStatus)
			r.With(admin, retrainRateLimit).Post("/retrain", opsHandler.Retrain)

			r.Route("/history", func(r chi.Router) {
				r.Use(staff)
				r.Use(batchRateLimit)
				r.Post("/demand", opsHandler.IngestDemand)
				r.Post("/trips", opsHandler.IngestTrips)
			})

			// Feature flags management
			r.Route("/flags", func(r chi.Router) {
				r.Use(admin)
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
