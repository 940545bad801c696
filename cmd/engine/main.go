// Package main provides the entrypoint for the CityTransit operations engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/alerts"
	"github.com/citytransit/opsengine/internal/api"
	"github.com/citytransit/opsengine/internal/api/middleware"
	"github.com/citytransit/opsengine/internal/auth"
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/config"
	"github.com/citytransit/opsengine/internal/database"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/history"
	"github.com/citytransit/opsengine/internal/occupancy"
	"github.com/citytransit/opsengine/internal/provider/resilience"
	"github.com/citytransit/opsengine/internal/sentiment"
	"github.com/citytransit/opsengine/internal/telemetry"
	"github.com/citytransit/opsengine/internal/training"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	serviceName := cfg.Telemetry.ServiceName
	log := newLogger(cfg, serviceName)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Environment).
		Msg("starting CityTransit operations engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRate,
		InstanceID:     hostname(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	meter := telemetry.Meter(serviceName)
	httpMetrics, err := middleware.NewMetrics(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	inference, err := telemetry.NewInferenceMetrics(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize inference metrics")
	}

	// Connect to database
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		dbConfig := database.FromConfig(cfg.Database)
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
	} else {
		log.Warn().Msg("database disabled, using in-memory flags and history")
	}

	registry := resilience.NewRegistry()

	// Feature flags
	defaults := featureflags.DefaultFlags()
	defaults[featureflags.FlagDisableDeepLearning].Value = !cfg.Models.DLEnabled
	var ffRepo featureflags.Repository = featureflags.NewInMemoryRepository()
	if pool != nil {
		ffRepo = featureflags.NewPostgresRepository(pool)
	}
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository:   ffRepo,
		Logger:       log,
		CacheTTL:     1 * time.Minute,
		DefaultFlags: defaults,
	})
	log.Info().Bool("dl_enabled", cfg.Models.DLEnabled).Msg("feature flags service initialized")

	// Alerts
	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		Publisher: newAlertPublisher(cfg, log, registry),
		Flags:     flags,
		Logger:    log,
	})
	dispatcher.Start(ctx)
	defer func() {
		if closeErr := dispatcher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close alert publisher")
		}
	}()

	// Ride history
	var repo history.Repository = history.NewInMemoryRepository()
	if pool != nil {
		repo = history.NewPostgresRepository(pool)
	}
	source := history.NewResilientSource(history.ResilientConfig{
		Source:   repo,
		Logger:   log,
		Registry: registry,
	})

	// Models
	predictor := demand.NewPredictor(demand.PredictorConfig{
		Logger:           log,
		Recorder:         inference,
		Flags:            flags,
		BatchConcurrency: cfg.Models.DemandBatchConcurrency,
	})
	clusterer := clustering.NewService(clustering.ServiceConfig{
		Logger:   log,
		Recorder: inference,
		Flags:    flags,
	})
	forecaster := forecast.NewService(forecast.ServiceConfig{
		Logger:   log,
		Recorder: inference,
		Flags:    flags,
	})
	scorer := sentiment.NewService(sentiment.ServiceConfig{
		Logger:    log,
		Recorder:  inference,
		Flags:     flags,
		Alerts:    dispatcher,
		CacheSize: cfg.Models.SentimentCacheSize,
		CacheTTL:  cfg.Models.SentimentCacheTTL,
	})
	estimator := occupancy.NewService(occupancy.ServiceConfig{
		Logger:           log,
		Recorder:         inference,
		Flags:            flags,
		Alerts:           dispatcher,
		BatchConcurrency: cfg.Models.OccupancyBatchConcurrency,
	})

	// Training
	orchestrator := training.NewOrchestrator(training.OrchestratorConfig{
		Config:     training.FromConfig(cfg.Training),
		Logger:     log,
		Predictor:  predictor,
		Clusterer:  clusterer,
		Forecaster: forecaster,
		History:    source,
		Flags:      flags,
	})
	go orchestrator.OnSystemReady(ctx)
	go orchestrator.RunSchedule(ctx, cfg.Training.RetrainInterval)

	if cfg.PubSub.Enabled {
		handler, pubsubErr := training.NewPubSubHandler(ctx, training.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Orchestrator:     orchestrator,
			Logger:           log,
		})
		if pubsubErr != nil {
			log.Fatal().Err(pubsubErr).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if startErr := handler.Start(ctx); startErr != nil {
				log.Error().Err(startErr).Msg("pubsub handler stopped")
			}
		}()
	}

	// Auth
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" && cfg.IsLocal() {
		jwtSecret = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSecret,
		Issuer:     cfg.Auth.JWTIssuer,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            httpMetrics,
		Tokens:             jwtService,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RequireTLS:         cfg.Server.RequireTLS,
		Flags:              flags,
		Predictor:          predictor,
		Clusterer:          clusterer,
		Forecaster:         forecaster,
		Sentiment:          scorer,
		Occupancy:          estimator,
		Orchestrator:       orchestrator,
		History:            source,
		Repository:         repo,
		Registry:           registry,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config, serviceName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stdout)
	}

	return out.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// newAlertPublisher returns a Kafka publisher when brokers are configured and
// a log publisher otherwise.
func newAlertPublisher(cfg *config.Config, log zerolog.Logger, registry *resilience.Registry) alerts.Publisher {
	if !cfg.Kafka.Enabled {
		return alerts.NewLogPublisher(log)
	}

	publisher, err := alerts.NewKafkaPublisher(alerts.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.AlertTopic,
		ClientID: cfg.Telemetry.ServiceName,
		Timeout:  cfg.Kafka.Timeout,
		Logger:   log,
		Registry: registry,
	})
	if err != nil {
		log.Error().Err(err).Strs("brokers", cfg.Kafka.Brokers).Msg("kafka unavailable, logging alerts instead")
		return alerts.NewLogPublisher(log)
	}
	log.Info().Str("topic", cfg.Kafka.AlertTopic).Msg("publishing alerts to kafka")
	return publisher
}

// hostname identifies this process in telemetry. Empty if unknown.
func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}
