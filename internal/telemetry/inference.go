package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/citytransit/opsengine/internal/telemetry"

// Inference paths.
const (
	PathModel    = "model"
	PathFallback = "fallback"
)

// Fallback causes. Untrained and error share the fallback path but are
// reported separately.
const (
	CauseUntrained = "untrained"
	CauseDisabled  = "disabled"
	CauseError     = "error"
	CauseNoInput   = "no_input"
)

// TrainingBuckets are the histogram boundaries for model fits, which run from
// milliseconds on synthetic data to minutes on a full history window.
var TrainingBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}

// Recorder receives inference and training events from the model services.
type Recorder interface {
	RecordInference(ctx context.Context, model, path string)
	RecordFallback(ctx context.Context, model, cause string)
	RecordTraining(ctx context.Context, model string, duration time.Duration, trained bool)
}

// NopRecorder discards every event.
type NopRecorder struct{}

// RecordInference implements Recorder.
func (NopRecorder) RecordInference(context.Context, string, string) {}

// RecordFallback implements Recorder.
func (NopRecorder) RecordFallback(context.Context, string, string) {}

// RecordTraining implements Recorder.
func (NopRecorder) RecordTraining(context.Context, string, time.Duration, bool) {}

// InferenceMetrics records model events as OpenTelemetry instruments.
type InferenceMetrics struct {
	inferenceTotal   metric.Int64Counter
	fallbackTotal    metric.Int64Counter
	trainingDuration metric.Float64Histogram
}

// NewInferenceMetrics creates the inference instruments on the given meter.
// A nil meter uses the global meter provider.
func NewInferenceMetrics(meter metric.Meter) (*InferenceMetrics, error) {
	if meter == nil {
		meter = Meter(meterName)
	}

	inferenceTotal, err := meter.Int64Counter(
		"opsengine.inference.total",
		metric.WithDescription("Inference calls by model and serving path"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackTotal, err := meter.Int64Counter(
		"opsengine.inference.fallback.total",
		metric.WithDescription("Inference calls served by the rule-based fallback, by cause"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	trainingDuration, err := meter.Float64Histogram(
		"opsengine.training.duration",
		metric.WithDescription("Duration of model fits in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(TrainingBuckets...),
	)
	if err != nil {
		return nil, err
	}

	return &InferenceMetrics{
		inferenceTotal:   inferenceTotal,
		fallbackTotal:    fallbackTotal,
		trainingDuration: trainingDuration,
	}, nil
}

// RecordInference implements Recorder.
func (m *InferenceMetrics) RecordInference(ctx context.Context, model, path string) {
	m.inferenceTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("path", path),
	))
}

// RecordFallback implements Recorder. It also counts the call on the fallback path.
func (m *InferenceMetrics) RecordFallback(ctx context.Context, model, cause string) {
	m.RecordInference(ctx, model, PathFallback)
	m.fallbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("cause", cause),
	))
}

// RecordTraining implements Recorder.
func (m *InferenceMetrics) RecordTraining(ctx context.Context, model string, duration time.Duration, trained bool) {
	m.trainingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("trained", trained),
	))
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*InferenceMetrics)(nil)
)
