package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/telemetry"
)

// ErrNoTrips is returned by RecommendForUser when the rider has no trips.
var ErrNoTrips = errors.New("no trips for user")

// Warnings attached to frequency-band results.
const (
	WarningUntrained = "model not trained, grouped by weekly frequency"
	WarningDisabled  = "clustering disabled by feature flag, grouped by weekly frequency"
	WarningError     = "model error, using fallback"
)

// ServiceConfig holds configuration for the clustering service.
type ServiceConfig struct {
	Logger   zerolog.Logger
	Recorder telemetry.Recorder
	Flags    *featureflags.Service

	// MinPatterns is the smallest training set accepted.
	// Default: 50
	MinPatterns int

	// K is the number of clusters.
	// Default: 4
	K int

	// MaxIterations bounds Lloyd iterations.
	// Default: 100
	MaxIterations int

	// Tolerance is the centroid shift below which training stops.
	// Default: 1e-4
	Tolerance float64

	// Seed drives centroid initialisation.
	// Default: 42
	Seed uint64

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// Service clusters trip patterns. It is safe for concurrent use.
type Service struct {
	logger   zerolog.Logger
	recorder telemetry.Recorder
	flags    *featureflags.Service
	cfg      kmeansConfig
	min      int
	now      func() time.Time

	mu        sync.RWMutex
	model     *kmeansModel
	trainedAt time.Time
}

// NewService creates a new clustering service.
func NewService(cfg ServiceConfig) *Service {
	km := kmeansConfig{k: cfg.K, maxIter: cfg.MaxIterations, tolerance: cfg.Tolerance, seed: cfg.Seed}
	if km.k == 0 {
		km.k = 4
	}
	if km.maxIter == 0 {
		km.maxIter = 100
	}
	if km.tolerance == 0 {
		km.tolerance = 1e-4
	}
	if km.seed == 0 {
		km.seed = 42
	}
	minPatterns := cfg.MinPatterns
	if minPatterns == 0 {
		minPatterns = 50
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		logger:   cfg.Logger.With().Str("model", ModelName).Logger(),
		recorder: recorder,
		flags:    cfg.Flags,
		cfg:      km,
		min:      minPatterns,
		now:      clock,
	}
}

// Train fits k-means on patterns. With fewer than MinPatterns patterns it
// returns ErrInsufficientData and keeps any previous fit.
func (s *Service) Train(ctx context.Context, patterns []TripPattern) (TrainReport, error) {
	start := time.Now()
	report := TrainReport{Patterns: len(patterns)}

	if len(patterns) < s.min {
		s.logger.Warn().
			Int("patterns", len(patterns)).
			Int("min_patterns", s.min).
			Msg("insufficient data for clustering")
		s.recorder.RecordTraining(ctx, ModelName, time.Since(start), false)
		return report, fmt.Errorf("%w: %d patterns, need %d", ErrInsufficientData, len(patterns), s.min)
	}

	points := make([][]float64, len(patterns))
	for i, p := range patterns {
		points[i] = featureVector(p)
	}

	model, err := fitKMeans(points, s.cfg)
	if err != nil {
		s.logger.Error().Err(err).Msg("k-means fit failed")
		s.recorder.RecordTraining(ctx, ModelName, time.Since(start), false)
		return report, fmt.Errorf("fit clustering model: %w", err)
	}

	s.mu.Lock()
	s.model = model
	s.trainedAt = s.now()
	s.mu.Unlock()

	report.Iterations = model.iterations
	report.Distortion = model.distortion
	report.Sizes = append([]int(nil), model.sizes...)
	report.Duration = time.Since(start)
	s.recorder.RecordTraining(ctx, ModelName, report.Duration, true)

	s.logger.Info().
		Int("patterns", len(patterns)).
		Int("k", s.cfg.k).
		Int("iterations", model.iterations).
		Ints("sizes", model.sizes).
		Float64("distortion", model.distortion).
		Msg("clustering model trained")

	return report, nil
}

// IsTrained reports whether centroids are available.
func (s *Service) IsTrained() bool {
	return s.current() != nil
}

// Status returns the current model state.
func (s *Service) Status() Status {
	st := Status{
		Type:        "K-means",
		Description: "Agrupa usuarios por patrones de viaje",
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return st
	}
	trainedAt := s.trainedAt
	st.Trained = true
	st.Clusters = len(s.model.centroids)
	st.TrainedAt = &trainedAt
	return st
}

func (s *Service) current() *kmeansModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// PredictCluster returns the cluster of a single pattern. The boolean is
// false, and the cluster 0, when no model is trained.
func (s *Service) PredictCluster(p TripPattern) (int, bool) {
	model := s.current()
	if model == nil {
		return 0, false
	}
	return model.predict(featureVector(p)), true
}

// Assign groups patterns by cluster. Every pattern appears in exactly one
// cluster. When the model is unavailable or faults, patterns are grouped by
// weekly-frequency band instead.
func (s *Service) Assign(ctx context.Context, patterns []TripPattern) (res Result) {
	if s.flags.IsRuleBasedClusteringForced(ctx) {
		return s.fallback(ctx, patterns, telemetry.CauseDisabled, nil)
	}

	model := s.current()
	if model == nil {
		return s.fallback(ctx, patterns, telemetry.CauseUntrained, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(ctx, patterns, telemetry.CauseError, fmt.Errorf("panic: %v", r))
		}
	}()

	groups := make([][]TripPattern, len(model.centroids))
	for _, p := range patterns {
		c := model.predict(featureVector(p))
		groups[c] = append(groups[c], p)
	}

	s.recorder.RecordInference(ctx, ModelName, telemetry.PathModel)
	res = Result{TotalPatterns: len(patterns), Method: MethodKMeans}
	for id, group := range groups {
		if len(group) == 0 {
			continue
		}
		res.Clusters = append(res.Clusters, analyzeCluster(id, group))
	}
	res.TotalClusters = len(res.Clusters)
	return res
}

type frequencyBand struct {
	name  string
	match func(freq int) bool
}

// frequencyBands are the fallback groups, in output order.
var frequencyBands = []frequencyBand{
	{name: "HIGH_FREQUENCY", match: func(f int) bool { return f >= 8 }},
	{name: "MEDIUM_FREQUENCY", match: func(f int) bool { return f >= 4 }},
	{name: "LOW_FREQUENCY", match: func(int) bool { return true }},
}

func bandFor(freq int) int {
	for i, b := range frequencyBands {
		if b.match(freq) {
			return i
		}
	}
	return len(frequencyBands) - 1
}

func (s *Service) fallback(ctx context.Context, patterns []TripPattern, cause string, err error) Result {
	event := s.logger.Warn()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Str("cause", cause).Int("patterns", len(patterns)).Msg("grouping trips by frequency band")
	s.recorder.RecordFallback(ctx, ModelName, cause)

	warning := WarningUntrained
	switch cause {
	case telemetry.CauseDisabled:
		warning = WarningDisabled
	case telemetry.CauseError:
		warning = WarningError
	}

	groups := make([][]TripPattern, len(frequencyBands))
	for _, p := range patterns {
		b := bandFor(p.WeeklyFrequency)
		groups[b] = append(groups[b], p)
	}

	res := Result{TotalPatterns: len(patterns), Method: MethodFrequencyBands, Warning: warning}
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		res.Clusters = append(res.Clusters, analyzeCluster(len(res.Clusters), group))
	}
	res.TotalClusters = len(res.Clusters)
	return res
}

// RecommendForUser returns the profile and offers of the cluster holding most
// of the rider's trips. Trips of other riders in trips are ignored.
func (s *Service) RecommendForUser(ctx context.Context, userID int64, trips []TripPattern) (UserRecommendation, error) {
	var own []TripPattern
	for _, t := range trips {
		if t.UserID == userID {
			own = append(own, t)
		}
	}
	if len(own) == 0 {
		return UserRecommendation{}, fmt.Errorf("%w: user %d", ErrNoTrips, userID)
	}

	res := s.Assign(ctx, own)
	dominant := res.Clusters[0]
	for _, c := range res.Clusters[1:] {
		if c.Members > dominant.Members {
			dominant = c
		}
	}

	return UserRecommendation{
		UserID:                  userID,
		ClusterID:               dominant.ClusterID,
		Profile:                 dominant.Profile,
		Recommendations:         dominant.Recommendations,
		EstimatedMonthlySavings: monthlySavings(dominant),
		Trips:                   len(own),
	}, nil
}

// monthlySavings estimates what a monthly subscription (30% off) would save.
// It is zero unless the cluster's offers include a subscription.
func monthlySavings(c UserCluster) float64 {
	if !subscriptionOffered(c) {
		return 0
	}
	return math.Round(c.AvgWeeklySpend*4*0.30*100) / 100
}

// subscriptionOffered reports whether c gets a subscription offer: commuters
// always do, everyone else once weekly spend passes the threshold.
func subscriptionOffered(c UserCluster) bool {
	return c.Profile == ProfileCommuter || c.AvgWeeklySpend > subscriptionSpendThreshold
}
