package models

import (
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
)

// BatchPredictionRequest carries several demand inputs.
type BatchPredictionRequest struct {
	Inputs []demand.Input `json:"inputs" validate:"required,min=1,max=500,dive"`
}

// BatchPredictionResponse returns predictions in request order.
type BatchPredictionResponse struct {
	Predictions []demand.Prediction `json:"predictions"`
	Total       int                 `json:"total"`
}

// ClusterRequest carries trip patterns to group.
type ClusterRequest struct {
	Patterns []clustering.TripPattern `json:"patterns" validate:"required,min=1,max=5000,dive"`
}

// MLStatus reports the classical models.
type MLStatus struct {
	Demand     demand.Status     `json:"demand"`
	Clustering clustering.Status `json:"clustering"`
}

// DemandHistoryRequest uploads labelled demand observations.
type DemandHistoryRequest struct {
	Records []demand.TrainingRecord `json:"records" validate:"required,min=1,max=5000"`
}

// TripHistoryRequest uploads trip patterns.
type TripHistoryRequest struct {
	Trips []clustering.TripPattern `json:"trips" validate:"required,min=1,max=5000,dive"`
}
