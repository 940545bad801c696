package models

import (
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/occupancy"
	"github.com/citytransit/opsengine/internal/sentiment"
)

// SentimentBatchRequest carries several feedback texts.
type SentimentBatchRequest struct {
	Items []sentiment.Request `json:"items" validate:"required,min=1,max=500,dive"`
}

// SentimentBatchResponse returns results in request order.
type SentimentBatchResponse struct {
	Results []sentiment.Result `json:"results"`
	Total   int                `json:"total"`
}

// OccupancyBatchRequest carries several frames.
type OccupancyBatchRequest struct {
	Requests []occupancy.Request `json:"requests" validate:"required,min=1,max=500,dive"`
}

// OccupancyBatchResponse returns results in request order.
type OccupancyBatchResponse struct {
	Results []occupancy.Result `json:"results"`
	Total   int                `json:"total"`
}

// OccupancyTrendRequest aggregates earlier analyses of a route.
type OccupancyTrendRequest struct {
	RouteID  int64              `json:"routeId" validate:"required,gt=0"`
	Analyses []occupancy.Result `json:"analyses" validate:"max=5000"`
}

// DLStatus reports the sequence and perception models.
type DLStatus struct {
	Enabled   bool            `json:"enabled"`
	Forecast  forecast.Status `json:"forecast"`
	Sentiment bool            `json:"sentimentLoaded"`
	Occupancy bool            `json:"occupancyLoaded"`
}
