// Package demand predicts passenger demand for a route and time slot.
//
// The Predictor fits an ordinary least squares model over ten temporal and
// weather features. Until a fit is available, or whenever the model path
// faults, predictions come from a fixed rule table instead.
package demand

import (
	"errors"
	"strings"
	"time"
)

// ModelName identifies the demand model in logs and metrics.
const ModelName = "demand"

// Capacity is the nominal vehicle capacity used to derive occupancy.
const Capacity = 40

// ErrInsufficientData is returned when training is attempted with too few records.
var ErrInsufficientData = errors.New("insufficient training data")

// Weather is the coarse weather condition used as a feature.
type Weather string

// Weather conditions.
const (
	WeatherSunny  Weather = "SUNNY"
	WeatherCloudy Weather = "CLOUDY"
	WeatherRainy  Weather = "RAINY"
)

// Ordinal returns the feature encoding of the condition. Unknown values encode as sunny.
func (w Weather) Ordinal() float64 {
	switch w {
	case WeatherCloudy:
		return 1
	case WeatherRainy:
		return 2
	default:
		return 0
	}
}

// ParseWeather maps an English or Spanish condition name to a Weather.
// Unknown names map to WeatherSunny.
func ParseWeather(s string) Weather {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLOUDY", "NUBLADO":
		return WeatherCloudy
	case "RAINY", "LLUVIOSO", "LLUVIA":
		return WeatherRainy
	default:
		return WeatherSunny
	}
}

// Level is the categorical demand bucket.
type Level string

// Demand levels.
const (
	LevelLow      Level = "BAJA"
	LevelMedium   Level = "MEDIA"
	LevelHigh     Level = "ALTA"
	LevelVeryHigh Level = "MUY_ALTA"
)

// Prediction sources.
const (
	SourceModel = "model"
	SourceRules = "rules"
)

// FeatureRecord is a fully populated demand observation for one route and time slot.
type FeatureRecord struct {
	RouteID     int64     `json:"routeId"`
	Timestamp   time.Time `json:"timestamp"`
	DayOfWeek   int       `json:"dayOfWeek"`
	Hour        int       `json:"hour"`
	Month       int       `json:"month"`
	IsHoliday   bool      `json:"isHoliday"`
	IsWeekend   bool      `json:"isWeekend"`
	Temperature float64   `json:"temperature"`
	Weather     Weather   `json:"weather"`
	HourOfDay   int       `json:"hourOfDay"`
	MinuteOfDay int       `json:"minuteOfDay"`
	IsRushHour  bool      `json:"isRushHour"`
}

// Input is a partially specified FeatureRecord as received from callers.
// Nil fields are backfilled by Enrich.
type Input struct {
	RouteID     int64      `json:"routeId" validate:"required,gt=0"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	DayOfWeek   *int       `json:"dayOfWeek,omitempty" validate:"omitempty,min=1,max=7"`
	Hour        *int       `json:"hour,omitempty" validate:"omitempty,min=0,max=23"`
	Month       *int       `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	IsHoliday   *bool      `json:"isHoliday,omitempty"`
	IsWeekend   *bool      `json:"isWeekend,omitempty"`
	Temperature *float64   `json:"temperature,omitempty" validate:"omitempty,min=-50,max=60"`
	Weather     *string    `json:"weather,omitempty"`
	HourOfDay   *int       `json:"hourOfDay,omitempty" validate:"omitempty,min=0,max=23"`
	MinuteOfDay *int       `json:"minuteOfDay,omitempty" validate:"omitempty,min=0,max=1439"`
	IsRushHour  *bool      `json:"isRushHour,omitempty"`
}

// TrainingRecord is a FeatureRecord labelled with the observed passenger count.
type TrainingRecord struct {
	FeatureRecord
	Passengers int `json:"passengers"`
}

// Prediction is the demand estimate for one record.
type Prediction struct {
	RouteID        int64     `json:"routeId"`
	Passengers     int       `json:"predictedPassengers"`
	Confidence     float64   `json:"confidence"`
	OccupancyRatio float64   `json:"predictedOccupancy"`
	Level          Level     `json:"demandLevel"`
	Recommendation string    `json:"recommendation"`
	Source         string    `json:"source"`
	Warning        string    `json:"warning,omitempty"`
	PredictedAt    time.Time `json:"predictedAt"`
}

// TrainReport summarizes a fit.
type TrainReport struct {
	Records  int           `json:"records"`
	RSquared float64       `json:"rSquared"`
	Duration time.Duration `json:"duration"`
}

// Status describes the current model state.
type Status struct {
	Trained     bool       `json:"trained"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	RSquared    float64    `json:"rSquared,omitempty"`
	Records     int        `json:"records,omitempty"`
	TrainedAt   *time.Time `json:"trainedAt,omitempty"`
}
