package demand

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/telemetry"
)

// Fallback warnings attached to rule-based predictions.
const (
	WarningUntrained = "model not trained, using rule-based prediction"
	WarningDisabled  = "model disabled by feature flag, using rule-based prediction"
	WarningError     = "model error, using fallback"
)

const (
	defaultMinRecords       = 50
	defaultBatchConcurrency = 4
	ruleConfidence          = 0.5
	minModelConfidence      = 0.6
	maxModelConfidence      = 0.95
	accuracyTolerance       = 0.2
)

// PredictorConfig holds configuration for the demand predictor.
type PredictorConfig struct {
	Logger   zerolog.Logger
	Recorder telemetry.Recorder
	Flags    *featureflags.Service

	// MinRecords is the smallest training set accepted.
	// Default: 50
	MinRecords int

	// BatchConcurrency bounds PredictBatch fan-out.
	// Default: 4
	BatchConcurrency int

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// Predictor estimates passenger demand. It is safe for concurrent use.
type Predictor struct {
	logger           zerolog.Logger
	recorder         telemetry.Recorder
	flags            *featureflags.Service
	minRecords       int
	batchConcurrency int
	now              func() time.Time

	mu  sync.RWMutex
	fit *fittedModel
}

// fittedModel is replaced as a whole so readers never see a partial fit.
type fittedModel struct {
	ols       *olsFit
	records   int
	trainedAt time.Time
}

// NewPredictor creates a new demand predictor.
func NewPredictor(cfg PredictorConfig) *Predictor {
	minRecords := cfg.MinRecords
	if minRecords == 0 {
		minRecords = defaultMinRecords
	}
	concurrency := cfg.BatchConcurrency
	if concurrency == 0 {
		concurrency = defaultBatchConcurrency
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Predictor{
		logger:           cfg.Logger.With().Str("model", ModelName).Logger(),
		recorder:         recorder,
		flags:            cfg.Flags,
		minRecords:       minRecords,
		batchConcurrency: concurrency,
		now:              clock,
	}
}

// Train fits the model on records. With fewer than MinRecords records it
// returns ErrInsufficientData and keeps any previous fit.
func (p *Predictor) Train(ctx context.Context, records []TrainingRecord) (TrainReport, error) {
	start := time.Now()
	report := TrainReport{Records: len(records)}

	if len(records) < p.minRecords {
		p.logger.Warn().
			Int("records", len(records)).
			Int("min_records", p.minRecords).
			Msg("insufficient data to train demand model")
		p.recorder.RecordTraining(ctx, ModelName, time.Since(start), false)
		return report, fmt.Errorf("%w: %d records, need %d", ErrInsufficientData, len(records), p.minRecords)
	}

	x := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, rec := range records {
		x[i] = featureVector(rec.FeatureRecord)
		y[i] = float64(rec.Passengers)
	}

	ols, err := fitOLS(x, y)
	if err != nil {
		p.logger.Error().Err(err).Msg("demand model fit failed")
		p.recorder.RecordTraining(ctx, ModelName, time.Since(start), false)
		return report, fmt.Errorf("fit demand model: %w", err)
	}

	p.mu.Lock()
	p.fit = &fittedModel{ols: ols, records: len(records), trainedAt: p.now()}
	p.mu.Unlock()

	report.RSquared = ols.rSquared
	report.Duration = time.Since(start)
	p.recorder.RecordTraining(ctx, ModelName, report.Duration, true)

	p.logger.Info().
		Int("records", len(records)).
		Int("rank", ols.rank).
		Float64("r_squared", ols.rSquared).
		Dur("duration", report.Duration).
		Msg("demand model trained")

	return report, nil
}

// IsTrained reports whether a fit is available.
func (p *Predictor) IsTrained() bool {
	return p.current() != nil
}

// Status returns the current model state.
func (p *Predictor) Status() Status {
	st := Status{
		Type:        "Linear regression (OLS)",
		Description: "Predice demanda de pasajeros por ruta",
	}
	fit := p.current()
	if fit == nil {
		return st
	}
	trainedAt := fit.trainedAt
	st.Trained = true
	st.RSquared = fit.ols.rSquared
	st.Records = fit.records
	st.TrainedAt = &trainedAt
	return st
}

func (p *Predictor) current() *fittedModel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fit
}

// Predict returns the demand estimate for record. It never fails: when the
// model is unavailable or faults, the rule-based estimate is returned with a
// warning.
func (p *Predictor) Predict(ctx context.Context, record FeatureRecord) (pred Prediction) {
	if p.flags.IsRuleBasedDemandForced(ctx) {
		return p.fallback(ctx, record, telemetry.CauseDisabled, nil)
	}

	fit := p.current()
	if fit == nil {
		return p.fallback(ctx, record, telemetry.CauseUntrained, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			pred = p.fallback(ctx, record, telemetry.CauseError, fmt.Errorf("panic: %v", r))
		}
	}()

	value := fit.ols.predict(featureVector(record))
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return p.fallback(ctx, record, telemetry.CauseError, fmt.Errorf("non-finite prediction %v", value))
	}

	passengers := int(math.Max(0, math.Round(value)))
	ratio := occupancyRatio(passengers)
	p.recorder.RecordInference(ctx, ModelName, telemetry.PathModel)

	return Prediction{
		RouteID:        record.RouteID,
		Passengers:     passengers,
		Confidence:     clamp(fit.ols.rSquared, minModelConfidence, maxModelConfidence),
		OccupancyRatio: ratio,
		Level:          LevelFor(passengers),
		Recommendation: RecommendationFor(ratio),
		Source:         SourceModel,
		PredictedAt:    p.now(),
	}
}

// PredictBatch predicts every record, preserving input order.
func (p *Predictor) PredictBatch(ctx context.Context, records []FeatureRecord) []Prediction {
	out := make([]Prediction, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.batchConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			out[i] = p.Predict(gctx, rec)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Predict never returns an error

	return out
}

// Evaluate returns the share of records whose model prediction is within 20%
// of the observed count. It returns 0 when untrained or records is empty.
func (p *Predictor) Evaluate(ctx context.Context, records []TrainingRecord) float64 {
	fit := p.current()
	if fit == nil || len(records) == 0 {
		return 0
	}

	correct := 0
	for _, rec := range records {
		predicted := math.Max(0, math.Round(fit.ols.predict(featureVector(rec.FeatureRecord))))
		actual := float64(rec.Passengers)
		if actual == 0 {
			if predicted == 0 {
				correct++
			}
			continue
		}
		if math.Abs(predicted-actual)/actual <= accuracyTolerance {
			correct++
		}
	}

	accuracy := float64(correct) / float64(len(records))
	p.logger.Debug().
		Int("records", len(records)).
		Float64("accuracy", accuracy).
		Msg("demand model evaluated")
	return accuracy
}

func (p *Predictor) fallback(ctx context.Context, record FeatureRecord, cause string, err error) Prediction {
	warning := WarningUntrained
	switch cause {
	case telemetry.CauseDisabled:
		warning = WarningDisabled
	case telemetry.CauseError:
		warning = WarningError
	}

	event := p.logger.Warn()
	if err != nil {
		event = p.logger.Error().Err(err)
	}
	event.Str("cause", cause).Int64("route_id", record.RouteID).Msg("using rule-based demand prediction")
	p.recorder.RecordFallback(ctx, ModelName, cause)

	passengers := RuleBasedPassengers(record)
	return Prediction{
		RouteID:        record.RouteID,
		Passengers:     passengers,
		Confidence:     ruleConfidence,
		OccupancyRatio: float64(passengers) / Capacity,
		Level:          LevelFor(passengers),
		Recommendation: RecommendRuleBased,
		Source:         SourceRules,
		Warning:        warning,
		PredictedAt:    p.now(),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
