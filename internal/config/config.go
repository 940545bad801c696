// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration for the engine. It is populated once
// at start-up and never modified afterwards.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`

	Server    ServerConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	PubSub    PubSubConfig
	Models    ModelsConfig
	Training  TrainingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120" validate:"min=1"`
	ReadTimeout        time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	RequireTLS         bool          `envconfig:"REQUIRE_TLS" default:"false"`
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DatabaseConfig holds ride-history store settings. When Enabled is false
// the engine runs on in-memory repositories.
type DatabaseConfig struct {
	Enabled         bool          `envconfig:"DATABASE_ENABLED" default:"false"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	User            string        `envconfig:"DB_USER" default:"opsengine"`
	Password        string        `envconfig:"DB_PASSWORD" default:"opsengine"`
	Name            string        `envconfig:"DB_NAME" default:"opsengine"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"opsengine"`
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	SampleRate   float64 `envconfig:"OTEL_SAMPLE_RATE" default:"1.0" validate:"min=0,max=1"`
}

// AuthConfig holds operator token settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"citytransit"`
}

// KafkaConfig holds the alert stream settings.
type KafkaConfig struct {
	Enabled    bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers    []string      `envconfig:"KAFKA_BROKERS" validate:"required_if=Enabled true"`
	AlertTopic string        `envconfig:"KAFKA_ALERT_TOPIC" default:"citytransit.alerts"`
	Timeout    time.Duration `envconfig:"KAFKA_TIMEOUT" default:"5s"`
}

// PubSubConfig holds the retrain job subscription settings.
type PubSubConfig struct {
	Enabled      bool   `envconfig:"PUBSUB_ENABLED" default:"false"`
	ProjectID    string `envconfig:"PUBSUB_PROJECT_ID" validate:"required_if=Enabled true"`
	Subscription string `envconfig:"PUBSUB_SUBSCRIPTION" default:"opsengine-retrain"`
}

// ModelsConfig holds inference settings shared by the model services.
type ModelsConfig struct {
	// DLEnabled is the start-up value of the forecaster, sentiment and
	// occupancy kill switch. The switch can be flipped at runtime through
	// the flags endpoint.
	DLEnabled                 bool          `envconfig:"DL_ENABLED" default:"true"`
	SentimentCacheSize        int           `envconfig:"SENTIMENT_CACHE_SIZE" default:"1024" validate:"min=1"`
	SentimentCacheTTL         time.Duration `envconfig:"SENTIMENT_CACHE_TTL" default:"1h"`
	OccupancyBatchConcurrency int           `envconfig:"OCCUPANCY_BATCH_CONCURRENCY" default:"4" validate:"min=1,max=64"`
	DemandBatchConcurrency    int           `envconfig:"DEMAND_BATCH_CONCURRENCY" default:"4" validate:"min=1,max=64"`
}

// TrainingConfig holds the dataset sizes used when the engine trains itself.
type TrainingConfig struct {
	Seed            uint64        `envconfig:"TRAINING_SEED" default:"42"`
	DemandRecords   int           `envconfig:"TRAINING_DEMAND_RECORDS" default:"500" validate:"min=1"`
	TestRecords     int           `envconfig:"TRAINING_TEST_RECORDS" default:"100" validate:"min=1"`
	TripPatterns    int           `envconfig:"TRAINING_TRIP_PATTERNS" default:"200" validate:"min=4"`
	SeriesHours     int           `envconfig:"TRAINING_SERIES_HOURS" default:"168" validate:"min=1"`
	MinHistory      int           `envconfig:"TRAINING_MIN_HISTORY" default:"50" validate:"min=1"`
	HistoryWindow   time.Duration `envconfig:"TRAINING_HISTORY_WINDOW" default:"2160h"`
	RetrainInterval time.Duration `envconfig:"TRAINING_RETRAIN_INTERVAL" default:"24h" validate:"min=1m"`
}

// IsLocal reports whether the engine runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into
	// its target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
