// Package clustering groups trip patterns into rider-behaviour segments.
package clustering

import (
	"errors"
	"time"
)

// ModelName identifies the clustering model in logs and metrics.
const ModelName = "clustering"

// Errors returned by the clustering package.
var (
	// ErrInsufficientData is returned when training is attempted with too few patterns.
	ErrInsufficientData = errors.New("insufficient training data")
)

// Profile is the inferred rider profile of a cluster.
type Profile string

// Rider profiles.
const (
	ProfileCommuter   Profile = "COMMUTER"
	ProfileStudent    Profile = "STUDENT"
	ProfileRegular    Profile = "REGULAR"
	ProfileOccasional Profile = "OCCASIONAL"
	ProfileTourist    Profile = "TOURIST"
)

// TimeBucket is a coarse time-of-day slot.
type TimeBucket string

// Time buckets.
const (
	TimeMorning   TimeBucket = "MORNING"
	TimeAfternoon TimeBucket = "AFTERNOON"
	TimeEvening   TimeBucket = "EVENING"
	TimeNight     TimeBucket = "NIGHT"
	TimeUnknown   TimeBucket = "UNKNOWN"
)

// Grouping methods reported in Result.
const (
	MethodKMeans         = "kmeans"
	MethodFrequencyBands = "frequency_bands"
)

// TripPattern is one trip as seen by the clusterer. Patterns are immutable once built.
type TripPattern struct {
	UserID          int64     `json:"userId"`
	CardID          int64     `json:"cardId"`
	Timestamp       time.Time `json:"timestamp"`
	DayOfWeek       int       `json:"dayOfWeek" validate:"min=1,max=7"`
	Hour            int       `json:"hour" validate:"min=0,max=23"`
	RouteID         int64     `json:"routeId"`
	OriginLat       float64   `json:"originLat"`
	OriginLon       float64   `json:"originLon"`
	DestLat         float64   `json:"destLat"`
	DestLon         float64   `json:"destLon"`
	DistanceKm      float64   `json:"distanceKm" validate:"min=0"`
	DurationMin     int       `json:"durationMinutes" validate:"min=0"`
	Cost            float64   `json:"cost" validate:"min=0"`
	WeeklyFrequency int       `json:"weeklyFrequency" validate:"min=0"`
}

// UserCluster summarizes the patterns assigned to one cluster.
type UserCluster struct {
	ClusterID          int        `json:"clusterId"`
	Profile            Profile    `json:"profile"`
	Members            int        `json:"memberCount"`
	AvgWeeklyFrequency float64    `json:"avgWeeklyFrequency"`
	FrequentRoutes     []string   `json:"frequentRoutes"`
	PreferredTime      TimeBucket `json:"preferredTime"`
	AvgWeeklySpend     float64    `json:"avgWeeklySpend"`
	Recommendations    []string   `json:"recommendations"`
}

// Result is the grouping of a set of patterns.
type Result struct {
	TotalClusters int           `json:"totalClusters"`
	TotalPatterns int           `json:"totalPatterns"`
	Method        string        `json:"method"`
	Clusters      []UserCluster `json:"clusters"`
	Warning       string        `json:"warning,omitempty"`
}

// UserRecommendation is the profile and offers for a single rider.
type UserRecommendation struct {
	UserID                  int64    `json:"userId"`
	ClusterID               int      `json:"clusterId"`
	Profile                 Profile  `json:"profile"`
	Recommendations         []string `json:"recommendations"`
	EstimatedMonthlySavings float64  `json:"estimatedMonthlySavings"`
	Trips                   int      `json:"trips"`
}

// TrainReport summarizes a fit.
type TrainReport struct {
	Patterns   int           `json:"patterns"`
	Iterations int           `json:"iterations"`
	Distortion float64       `json:"distortion"`
	Sizes      []int         `json:"clusterSizes"`
	Duration   time.Duration `json:"duration"`
}

// Status describes the current model state.
type Status struct {
	Trained     bool       `json:"trained"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Clusters    int        `json:"clusters,omitempty"`
	TrainedAt   *time.Time `json:"trainedAt,omitempty"`
}
