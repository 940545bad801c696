package training

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/history"
	"github.com/citytransit/opsengine/internal/synthetic"
)

// HistoryReader reads the datasets used for training.
type HistoryReader interface {
	Snapshot(ctx context.Context, since time.Time) (history.Snapshot, error)
}

// Orchestrator trains every model. Runs are serialized; a retrain replaces
// each fitted model as a whole.
type Orchestrator struct {
	config     Config
	logger     zerolog.Logger
	predictor  *demand.Predictor
	clusterer  *clustering.Service
	forecaster *forecast.Service
	history    HistoryReader
	flags      *featureflags.Service
	now        func() time.Time

	runMu     sync.Mutex
	readyOnce sync.Once
	metrics   *Metrics

	lastMu sync.RWMutex
	last   *Result
}

// OrchestratorConfig holds configuration for creating an Orchestrator.
type OrchestratorConfig struct {
	Config     Config
	Logger     zerolog.Logger
	Predictor  *demand.Predictor
	Clusterer  *clustering.Service
	Forecaster *forecast.Service

	// History is optional. Without it every run trains on synthetic data.
	History HistoryReader

	// Flags gates scheduled retraining.
	Flags *featureflags.Service

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// NewOrchestrator creates a new training orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		config:     cfg.Config.withDefaults(),
		logger:     cfg.Logger.With().Str("component", "training").Logger(),
		predictor:  cfg.Predictor,
		clusterer:  cfg.Clusterer,
		forecaster: cfg.Forecaster,
		history:    cfg.History,
		flags:      cfg.Flags,
		now:        clock,
		metrics:    &Metrics{},
	}
}

// Result contains the outcome of a training run.
type Result struct {
	StartTime    time.Time         `json:"startTime"`
	EndTime      time.Time         `json:"endTime"`
	Duration     time.Duration     `json:"duration"`
	Synthetic    bool              `json:"synthetic"`
	StaleHistory bool              `json:"staleHistory,omitempty"`
	Warning      string            `json:"warning,omitempty"`
	Demand       DemandOutcome     `json:"demand"`
	Clustering   ClusteringOutcome `json:"clustering"`
	Forecast     ForecastOutcome   `json:"forecast"`
}

// DemandOutcome is the demand predictor part of a Result.
type DemandOutcome struct {
	Trained     bool    `json:"trained"`
	Synthetic   bool    `json:"synthetic"`
	Records     int     `json:"records"`
	TestRecords int     `json:"testRecords"`
	RSquared    float64 `json:"rSquared"`
	Accuracy    float64 `json:"accuracy"`
	Error       string  `json:"error,omitempty"`
}

// ClusteringOutcome is the trip clusterer part of a Result.
type ClusteringOutcome struct {
	Trained   bool   `json:"trained"`
	Synthetic bool   `json:"synthetic"`
	Patterns  int    `json:"patterns"`
	Sizes     []int  `json:"clusterSizes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ForecastOutcome is the forecaster part of a Result.
type ForecastOutcome struct {
	Trained    bool    `json:"trained"`
	Synthetic  bool    `json:"synthetic"`
	Points     int     `json:"points"`
	Evaluation float64 `json:"evaluation"`
	Error      string  `json:"error,omitempty"`
}

// modelCount is the number of models trained per run.
const modelCount = 3

// Failed returns the number of models that did not train.
func (r *Result) Failed() int {
	failed := 0
	for _, ok := range []bool{r.Demand.Trained, r.Clustering.Trained, r.Forecast.Trained} {
		if !ok {
			failed++
		}
	}
	return failed
}

// AllFailed reports whether no model trained.
func (r *Result) AllFailed() bool {
	return r.Failed() == modelCount
}

// datasets holds the inputs of one run.
type datasets struct {
	demandTrain     []demand.TrainingRecord
	demandTest      []demand.TrainingRecord
	demandSynthetic bool
	trips           []clustering.TripPattern
	tripsSynthetic  bool
	series          []int
	seriesSynthetic bool
}

// Run trains all models and returns the outcome. A model that fails to
// train keeps its previous fit; the other models are unaffected.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	startTime := o.now()
	result := &Result{StartTime: startTime}

	o.logger.Info().
		Int("min_history", o.config.MinHistory).
		Dur("history_window", o.config.HistoryWindow).
		Msg("starting model training")

	data := o.loadData(ctx, startTime, result)

	var g errgroup.Group
	g.Go(func() error {
		result.Demand = o.trainDemand(ctx, data)
		return nil
	})
	g.Go(func() error {
		result.Clustering = o.trainClustering(ctx, data)
		return nil
	})
	g.Go(func() error {
		result.Forecast = o.trainForecast(ctx, data)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // training goroutines report through result

	result.Synthetic = data.demandSynthetic || data.tripsSynthetic || data.seriesSynthetic
	if result.Synthetic {
		result.Warning = WarningSynthetic
	}
	result.EndTime = o.now()
	result.Duration = result.EndTime.Sub(startTime)

	o.updateMetrics(result)
	o.lastMu.Lock()
	o.last = result
	o.lastMu.Unlock()

	o.logger.Info().
		Dur("duration", result.Duration).
		Bool("synthetic", result.Synthetic).
		Int("failed", result.Failed()).
		Msg("model training completed")

	return result
}

// OnSystemReady runs the first training once. Later calls return nil.
func (o *Orchestrator) OnSystemReady(ctx context.Context) *Result {
	var result *Result
	o.readyOnce.Do(func() {
		result = o.Run(ctx)
	})
	return result
}

// RunSchedule retrains every interval while the scheduled retrain flag is
// on. It blocks until ctx is done.
func (o *Orchestrator) RunSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.flags.IsScheduledRetrainEnabled(ctx) {
				o.logger.Debug().Msg("scheduled retrain disabled, skipping")
				continue
			}
			o.Run(ctx)
		}
	}
}

// LastResult returns the outcome of the most recent run, or nil.
func (o *Orchestrator) LastResult() *Result {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.last
}

func (o *Orchestrator) loadData(ctx context.Context, now time.Time, result *Result) datasets {
	var snap history.Snapshot
	if o.history != nil {
		var err error
		snap, err = o.history.Snapshot(ctx, now.Add(-o.config.HistoryWindow))
		if err != nil {
			o.logger.Warn().Err(err).Msg("ride history unavailable, using synthetic data where needed")
		}
		result.StaleHistory = snap.Stale
	}

	gen := synthetic.New(o.config.Seed, now)
	var data datasets

	// The holdout comes out of history, so history only wins when what is
	// left still meets the minimum.
	train, test := holdOut(snap.Demand, o.config.TestRecords)
	if len(train) >= o.config.MinHistory {
		data.demandTrain, data.demandTest = train, test
	} else {
		data.demandTrain = gen.DemandRecords(o.config.DemandRecords)
		data.demandTest = gen.DemandRecords(o.config.TestRecords)
		data.demandSynthetic = true
	}

	if len(snap.Trips) >= o.config.MinHistory {
		data.trips = snap.Trips
	} else {
		data.trips = gen.TripPatterns(o.config.TripPatterns)
		data.tripsSynthetic = true
	}

	if series := hourlySeries(snap.Demand); len(series) >= o.config.MinHistory {
		data.series = series
	} else {
		data.series = gen.HourlySeries(o.config.SeriesHours)
		data.seriesSynthetic = true
	}

	o.logger.Info().
		Int("demand_records", len(data.demandTrain)).
		Bool("demand_synthetic", data.demandSynthetic).
		Int("trip_patterns", len(data.trips)).
		Bool("trips_synthetic", data.tripsSynthetic).
		Int("series_points", len(data.series)).
		Bool("series_synthetic", data.seriesSynthetic).
		Msg("training data loaded")

	return data
}

// holdOut keeps the most recent records for evaluation: at most limit and
// at most a fifth of the set. records must be ordered oldest first.
func holdOut(records []demand.TrainingRecord, limit int) (train, test []demand.TrainingRecord) {
	n := min(limit, len(records)/5)
	split := len(records) - n
	return records[:split], records[split:]
}

// hourlySeries sums passengers per hour across routes. records must be
// ordered oldest first. Hours without observations are skipped.
func hourlySeries(records []demand.TrainingRecord) []int {
	var (
		series []int
		bucket time.Time
	)
	for _, rec := range records {
		h := rec.Timestamp.Truncate(time.Hour)
		if len(series) == 0 || !h.Equal(bucket) {
			series = append(series, 0)
			bucket = h
		}
		series[len(series)-1] += rec.Passengers
	}
	return series
}

func (o *Orchestrator) trainDemand(ctx context.Context, data datasets) DemandOutcome {
	out := DemandOutcome{
		Synthetic:   data.demandSynthetic,
		Records:     len(data.demandTrain),
		TestRecords: len(data.demandTest),
	}

	report, err := o.predictor.Train(ctx, data.demandTrain)
	if err != nil {
		o.logger.Error().Err(err).Msg("demand model training failed")
		out.Error = err.Error()
		return out
	}

	out.Trained = true
	out.RSquared = report.RSquared
	out.Accuracy = o.predictor.Evaluate(ctx, data.demandTest)

	o.logger.Info().
		Float64("r_squared", out.RSquared).
		Float64("accuracy", out.Accuracy).
		Int("test_records", out.TestRecords).
		Msg("demand model evaluated")
	return out
}

func (o *Orchestrator) trainClustering(ctx context.Context, data datasets) ClusteringOutcome {
	out := ClusteringOutcome{
		Synthetic: data.tripsSynthetic,
		Patterns:  len(data.trips),
	}

	report, err := o.clusterer.Train(ctx, data.trips)
	if err != nil {
		o.logger.Error().Err(err).Msg("clustering model training failed")
		out.Error = err.Error()
		return out
	}

	out.Trained = true
	out.Sizes = report.Sizes
	o.logger.Info().Ints("cluster_sizes", out.Sizes).Msg("clustering model ready")
	return out
}

func (o *Orchestrator) trainForecast(ctx context.Context, data datasets) ForecastOutcome {
	out := ForecastOutcome{
		Synthetic: data.seriesSynthetic,
		Points:    len(data.series),
	}

	if err := o.forecaster.Train(ctx, data.series); err != nil {
		o.logger.Error().Err(err).Msg("forecast model training failed")
		out.Error = err.Error()
		return out
	}

	out.Trained = true
	out.Evaluation = o.forecaster.Evaluate()
	o.logger.Info().Float64("evaluation", out.Evaluation).Msg("forecast model ready")
	return out
}
