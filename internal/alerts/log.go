package alerts

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes alerts to the log. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a log publisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "alerts").Logger()}
}

// Publish logs the alert at warn level.
func (p *LogPublisher) Publish(_ context.Context, alert Alert) error {
	p.logger.Warn().
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Int64("route_id", alert.RouteID).
		Str("vehicle_id", alert.VehicleID).
		Int("priority", alert.Priority).
		Msg(alert.Message)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
