package training

import (
	"sync"
	"time"
)

// Metrics tracks training statistics across runs.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	SuccessfulRuns int64
	FailedModels   int64
	SyntheticRuns  int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration

	// Latest scores
	DemandRSquared     float64
	DemandAccuracy     float64
	ForecastEvaluation float64
	ClusterSizes       []int
}

func (o *Orchestrator) updateMetrics(result *Result) {
	o.metrics.mu.Lock()
	defer o.metrics.mu.Unlock()

	o.metrics.TotalRuns++
	if result.Failed() == 0 {
		o.metrics.SuccessfulRuns++
	}
	o.metrics.FailedModels += int64(result.Failed())
	if result.Synthetic {
		o.metrics.SyntheticRuns++
	}
	o.metrics.LastRunAt = result.EndTime
	o.metrics.LastRunDuration = result.Duration
	o.metrics.TotalDuration += result.Duration

	if result.Demand.Trained {
		o.metrics.DemandRSquared = result.Demand.RSquared
		o.metrics.DemandAccuracy = result.Demand.Accuracy
	}
	if result.Forecast.Trained {
		o.metrics.ForecastEvaluation = result.Forecast.Evaluation
	}
	if result.Clustering.Trained {
		o.metrics.ClusterSizes = append([]int(nil), result.Clustering.Sizes...)
	}
}

// GetMetrics returns a copy of the current metrics.
func (o *Orchestrator) GetMetrics() Metrics {
	o.metrics.mu.RLock()
	defer o.metrics.mu.RUnlock()

	return Metrics{
		TotalRuns:          o.metrics.TotalRuns,
		SuccessfulRuns:     o.metrics.SuccessfulRuns,
		FailedModels:       o.metrics.FailedModels,
		SyntheticRuns:      o.metrics.SyntheticRuns,
		LastRunAt:          o.metrics.LastRunAt,
		LastRunDuration:    o.metrics.LastRunDuration,
		TotalDuration:      o.metrics.TotalDuration,
		DemandRSquared:     o.metrics.DemandRSquared,
		DemandAccuracy:     o.metrics.DemandAccuracy,
		ForecastEvaluation: o.metrics.ForecastEvaluation,
		ClusterSizes:       append([]int(nil), o.metrics.ClusterSizes...),
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (o *Orchestrator) MetricsSnapshot() map[string]interface{} {
	m := o.GetMetrics()
	snapshot := map[string]interface{}{
		"total_runs":          m.TotalRuns,
		"successful_runs":     m.SuccessfulRuns,
		"failed_models":       m.FailedModels,
		"synthetic_runs":      m.SyntheticRuns,
		"last_run_duration":   m.LastRunDuration.String(),
		"demand_r_squared":    m.DemandRSquared,
		"demand_accuracy":     m.DemandAccuracy,
		"forecast_evaluation": m.ForecastEvaluation,
		"cluster_sizes":       m.ClusterSizes,
	}
	if !m.LastRunAt.IsZero() {
		snapshot["last_run_at"] = m.LastRunAt.Format(time.RFC3339)
	}
	if m.TotalRuns > 0 {
		snapshot["avg_run_duration"] = (m.TotalDuration / time.Duration(m.TotalRuns)).String()
	}
	return snapshot
}
