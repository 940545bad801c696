package models

import (
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/forecast"
)

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall engine status.
type SystemStatus struct {
	Status       HealthStatus           `json:"status"`
	Time         Timestamp              `json:"time"`
	Models       ModelStatuses          `json:"models"`
	Dependencies []DependencyStatus     `json:"dependencies"`
	Training     map[string]interface{} `json:"training"`
}

// ModelStatuses lists every model's state.
type ModelStatuses struct {
	Demand     demand.Status     `json:"demand"`
	Clustering clustering.Status `json:"clustering"`
	Forecast   forecast.Status   `json:"forecast"`
	Sentiment  bool              `json:"sentimentLoaded"`
	Occupancy  bool              `json:"occupancyLoaded"`
}

// DependencyStatus represents the status of a guarded dependency.
type DependencyStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// IngestResponse acknowledges a history upload.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}
