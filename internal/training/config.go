// Package training fits the demand, clustering and forecasting models from
// ride history, falling back to synthetic data when history is missing.
package training

import (
	"time"

	"github.com/citytransit/opsengine/internal/config"
	"github.com/citytransit/opsengine/internal/synthetic"
)

// Warning attached to results trained on generated data.
const WarningSynthetic = "uses simulated data"

// Config holds dataset sizes for a training run.
type Config struct {
	// Seed drives the synthetic generator.
	// Default: 42
	Seed uint64

	// DemandRecords is the size of the synthetic demand training set.
	// Default: 500
	DemandRecords int

	// TestRecords is the size of the synthetic demand evaluation set.
	// Default: 100
	TestRecords int

	// TripPatterns is the target size of the synthetic trip set.
	// Default: 200
	TripPatterns int

	// SeriesHours is the length of the synthetic hourly series.
	// Default: 168
	SeriesHours int

	// MinHistory is the smallest history dataset used instead of synthetic data.
	// Default: 50
	MinHistory int

	// HistoryWindow is how far back history is read.
	// Default: 90 days
	HistoryWindow time.Duration
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Seed:          synthetic.DefaultSeed,
		DemandRecords: 500,
		TestRecords:   100,
		TripPatterns:  200,
		SeriesHours:   168,
		MinHistory:    50,
		HistoryWindow: 90 * 24 * time.Hour,
	}
}

// FromConfig maps the loaded training section onto a Config.
func FromConfig(c config.TrainingConfig) Config {
	return Config{
		Seed:          c.Seed,
		DemandRecords: c.DemandRecords,
		TestRecords:   c.TestRecords,
		TripPatterns:  c.TripPatterns,
		SeriesHours:   c.SeriesHours,
		MinHistory:    c.MinHistory,
		HistoryWindow: c.HistoryWindow,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.DemandRecords == 0 {
		c.DemandRecords = d.DemandRecords
	}
	if c.TestRecords == 0 {
		c.TestRecords = d.TestRecords
	}
	if c.TripPatterns == 0 {
		c.TripPatterns = d.TripPatterns
	}
	if c.SeriesHours == 0 {
		c.SeriesHours = d.SeriesHours
	}
	if c.MinHistory == 0 {
		c.MinHistory = d.MinHistory
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	return c
}
