// Package forecast produces short-term hourly passenger forecasts per route.
package forecast

import (
	"errors"
	"time"
)

// ModelName identifies the forecaster in logs and metrics.
const ModelName = "forecast"

// Errors returned by the forecast package.
var (
	// ErrInsufficientData is returned when training is attempted with too few points.
	ErrInsufficientData = errors.New("insufficient training data")
)

// Trend is the direction of a forecast.
type Trend string

// Trends.
const (
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"
	TrendStable     Trend = "STABLE"
)

// Request asks for a forecast.
type Request struct {
	RouteID      int64     `json:"routeId" validate:"required,gt=0"`
	Passengers   []int     `json:"passengers,omitempty"`
	Temperatures []float64 `json:"temperatures,omitempty"`
	Horizon      *int      `json:"horizonHours,omitempty" validate:"omitempty,min=1,max=168"`
}

// Point is one forecast step.
type Point struct {
	Timestamp  time.Time `json:"timestamp"`
	Passengers int       `json:"predictedPassengers"`
	Confidence float64   `json:"confidence"`
	Variance   float64   `json:"variance"`
}

// Result is a forecast over a horizon.
type Result struct {
	RouteID           int64     `json:"routeId"`
	GeneratedAt       time.Time `json:"generatedAt"`
	Points            []Point   `json:"predictions"`
	AverageConfidence float64   `json:"averageConfidence"`
	Trend             Trend     `json:"trend"`
	PeakPassengers    int       `json:"peakPassengers"`
	PeakTime          time.Time `json:"peakTime"`
	Source            string    `json:"source"`
	Warning           string    `json:"warning,omitempty"`
}

// Forecast sources.
const (
	SourceModel = "model"
	SourceRules = "rules"
)

// Status describes the current forecaster state.
type Status struct {
	Trained     bool       `json:"trained"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Points      int        `json:"points,omitempty"`
	TrainedAt   *time.Time `json:"trainedAt,omitempty"`
}
