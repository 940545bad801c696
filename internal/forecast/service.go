package forecast

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/telemetry"
)

// Fallback warnings.
const (
	WarningUntrained = "model not trained, using rule-based forecast"
	WarningDisabled  = "forecasting disabled, using rule-based forecast"
	WarningError     = "model error, using fallback"
)

const (
	defaultHorizon     = 12
	maxHorizon         = 168
	defaultTemperature = 26.0
	hotThreshold       = 30.0
	hotBump            = 5

	modelVariance          = 2.5
	modelConfidenceMin     = 0.75
	modelConfidenceSpread  = 0.15
	modelAverageConfidence = 0.82

	ruleHorizon    = 6
	ruleConfidence = 0.65
	ruleVariance   = 3.0
)

// ServiceConfig holds configuration for the forecaster.
type ServiceConfig struct {
	Logger   zerolog.Logger
	Recorder telemetry.Recorder
	Flags    *featureflags.Service

	// MinPoints is the smallest training series accepted.
	// Default: 50
	MinPoints int

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// Rand draws per-point confidence noise in [0,1). Default: math/rand/v2 Float64.
	Rand func() float64
}

// Service produces hourly forecasts. It is safe for concurrent use.
type Service struct {
	logger    zerolog.Logger
	recorder  telemetry.Recorder
	flags     *featureflags.Service
	minPoints int
	now       func() time.Time
	rand      func() float64

	mu    sync.RWMutex
	state *trainedState
}

type trainedState struct {
	points    int
	trainedAt time.Time
}

// NewService creates a new forecaster.
func NewService(cfg ServiceConfig) *Service {
	minPoints := cfg.MinPoints
	if minPoints == 0 {
		minPoints = 50
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Float64
	}

	return &Service{
		logger:    cfg.Logger.With().Str("model", ModelName).Logger(),
		recorder:  recorder,
		flags:     cfg.Flags,
		minPoints: minPoints,
		now:       clock,
		rand:      rnd,
	}
}

// Train marks the forecaster trained on an hourly passenger series. With
// fewer than MinPoints points it returns ErrInsufficientData.
func (s *Service) Train(ctx context.Context, passengers []int) error {
	start := time.Now()
	if len(passengers) < s.minPoints {
		s.logger.Warn().
			Int("points", len(passengers)).
			Int("min_points", s.minPoints).
			Msg("insufficient data to train forecaster")
		s.recorder.RecordTraining(ctx, ModelName, time.Since(start), false)
		return fmt.Errorf("%w: %d points, need %d", ErrInsufficientData, len(passengers), s.minPoints)
	}

	s.mu.Lock()
	s.state = &trainedState{points: len(passengers), trainedAt: s.now()}
	s.mu.Unlock()

	s.recorder.RecordTraining(ctx, ModelName, time.Since(start), true)
	s.logger.Info().Int("points", len(passengers)).Msg("forecaster trained")
	return nil
}

// IsTrained reports whether the forecaster has been trained.
func (s *Service) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != nil
}

// Status returns the current forecaster state.
func (s *Service) Status() Status {
	st := Status{
		Type:        "Hourly demand profile",
		Description: "Pronostica demanda horaria por ruta",
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return st
	}
	trainedAt := s.state.trainedAt
	st.Trained = true
	st.Points = s.state.points
	st.TrainedAt = &trainedAt
	return st
}

// Evaluate returns the aggregate forecast accuracy, or 0 when untrained.
func (s *Service) Evaluate() float64 {
	if !s.IsTrained() {
		return 0
	}
	return modelAverageConfidence
}

// Forecast returns an hourly forecast for the route. It never fails: when
// the forecaster is untrained, disabled, or faults, a six-hour rule-based
// forecast is returned.
func (s *Service) Forecast(ctx context.Context, req Request) (res Result) {
	if s.flags.IsDeepLearningDisabled(ctx) {
		return s.fallback(ctx, req, telemetry.CauseDisabled, nil)
	}
	if !s.IsTrained() {
		return s.fallback(ctx, req, telemetry.CauseUntrained, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(ctx, req, telemetry.CauseError, fmt.Errorf("panic: %v", r))
		}
	}()

	horizon := defaultHorizon
	if req.Horizon != nil && *req.Horizon > 0 {
		horizon = min(*req.Horizon, maxHorizon)
	}

	temperature := defaultTemperature
	if len(req.Temperatures) > 0 {
		temperature = req.Temperatures[0]
	}

	start := s.now()
	res = Result{
		RouteID:           req.RouteID,
		GeneratedAt:       start,
		Points:            make([]Point, 0, horizon),
		AverageConfidence: modelAverageConfidence,
		PeakTime:          start,
		Source:            SourceModel,
	}

	values := make([]int, 0, horizon)
	for h := 0; h < horizon; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		demand := BaseDemand(ts.Hour(), isoWeekday(ts))
		if temperature > hotThreshold {
			demand += hotBump
		}

		if demand > res.PeakPassengers {
			res.PeakPassengers = demand
			res.PeakTime = ts
		}

		res.Points = append(res.Points, Point{
			Timestamp:  ts,
			Passengers: demand,
			Confidence: modelConfidenceMin + s.rand()*modelConfidenceSpread,
			Variance:   modelVariance,
		})
		values = append(values, demand)
	}
	res.Trend = ClassifyTrend(values)

	s.recorder.RecordInference(ctx, ModelName, telemetry.PathModel)
	return res
}

func (s *Service) fallback(ctx context.Context, req Request, cause string, err error) Result {
	event := s.logger.Warn()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Str("cause", cause).Int64("route_id", req.RouteID).Msg("using rule-based forecast")
	s.recorder.RecordFallback(ctx, ModelName, cause)

	warning := WarningUntrained
	switch cause {
	case telemetry.CauseDisabled:
		warning = WarningDisabled
	case telemetry.CauseError:
		warning = WarningError
	}

	start := s.now()
	res := Result{
		RouteID:           req.RouteID,
		GeneratedAt:       start,
		Points:            make([]Point, 0, ruleHorizon),
		AverageConfidence: ruleConfidence,
		Trend:             TrendStable,
		PeakTime:          start,
		Source:            SourceRules,
		Warning:           warning,
	}
	for h := 0; h < ruleHorizon; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		demand := BaseDemand(ts.Hour(), isoWeekday(ts))
		res.PeakPassengers = max(res.PeakPassengers, demand)
		res.Points = append(res.Points, Point{
			Timestamp:  ts,
			Passengers: demand,
			Confidence: ruleConfidence,
			Variance:   ruleVariance,
		})
	}
	return res
}

func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}
