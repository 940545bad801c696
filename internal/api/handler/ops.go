// Package handler provides HTTP handlers for the CityTransit operations API.
package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/api/models"
	"github.com/citytransit/opsengine/internal/api/response"
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/history"
	"github.com/citytransit/opsengine/internal/occupancy"
	"github.com/citytransit/opsengine/internal/provider/resilience"
	"github.com/citytransit/opsengine/internal/sentiment"
	"github.com/citytransit/opsengine/internal/training"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	predictor    *demand.Predictor
	clusterer    *clustering.Service
	forecaster   *forecast.Service
	sentiment    *sentiment.Service
	occupancy    *occupancy.Service
	orchestrator *training.Orchestrator
	repository   history.Repository
	registry     *resilience.Registry
	validator    *Validator
	logger       zerolog.Logger
}

// OpsHandlerConfig holds the dependencies of an OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	Predictor    *demand.Predictor
	Clusterer    *clustering.Service
	Forecaster   *forecast.Service
	Sentiment    *sentiment.Service
	Occupancy    *occupancy.Service
	Orchestrator *training.Orchestrator

	// Repository receives uploaded history. Nil disables ingestion.
	Repository history.Repository

	// Registry reports guarded dependency health. Nil reports none.
	Registry *resilience.Registry

	Validator *Validator
	Logger    zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		predictor:    cfg.Predictor,
		clusterer:    cfg.Clusterer,
		forecaster:   cfg.Forecaster,
		sentiment:    cfg.Sentiment,
		occupancy:    cfg.Occupancy,
		orchestrator: cfg.Orchestrator,
		repository:   cfg.Repository,
		registry:     cfg.Registry,
		validator:    v,
		logger:       cfg.Logger.With().Str("handler", "ops").Logger(),
	}
}

// HealthCheck handles GET /health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ready. The engine is ready once the first
// training run has completed.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	deps := h.dependencies()
	details := map[string]interface{}{"dependencies": deps}

	last := h.orchestrator.LastResult()
	if last == nil {
		details["training"] = "pending"
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(time.Now()),
			Details: details,
		})
		return
	}

	details["lastTrainedAt"] = last.EndTime
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  overallStatus(deps),
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - model and dependency status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	deps := h.dependencies()
	modelStatus := models.ModelStatuses{
		Demand:     h.predictor.Status(),
		Clustering: h.clusterer.Status(),
		Forecast:   h.forecaster.Status(),
		Sentiment:  h.sentiment.IsLoaded(),
		Occupancy:  h.occupancy.IsLoaded(),
	}

	status := overallStatus(deps)
	if !modelStatus.Demand.Trained || !modelStatus.Clustering.Trained || !modelStatus.Forecast.Trained {
		status = models.HealthStatusDegraded
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:       status,
		Time:         models.Timestamp(time.Now()),
		Models:       modelStatus,
		Dependencies: deps,
		Training:     h.orchestrator.MetricsSnapshot(),
	})
}

// Retrain handles POST /v1/ops/retrain. It blocks until the run finishes.
func (h *OpsHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	result := h.orchestrator.Run(r.Context())
	if result.AllFailed() {
		h.logger.Error().
			Str("demand", result.Demand.Error).
			Str("clustering", result.Clustering.Error).
			Str("forecast", result.Forecast.Error).
			Msg("retrain failed for every model")
		response.TrainingFailed(w, r, map[string]string{
			"clustering": result.Clustering.Error,
			"demand":     result.Demand.Error,
			"forecast":   result.Forecast.Error,
		})
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// IngestDemand handles POST /v1/ops/history/demand.
func (h *OpsHandler) IngestDemand(w http.ResponseWriter, r *http.Request) {
	if h.repository == nil {
		response.HistoryUnavailable(w, r, "history ingestion is not configured")
		return
	}

	var req models.DemandHistoryRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	if err := h.repository.AddDemand(r.Context(), req.Records); err != nil {
		h.logger.Error().Err(err).Int("records", len(req.Records)).Msg("failed to store demand history")
		response.InternalError(w, r, "failed to store demand history")
		return
	}
	response.Accepted(w, r, models.IngestResponse{Accepted: len(req.Records)})
}

// IngestTrips handles POST /v1/ops/history/trips.
func (h *OpsHandler) IngestTrips(w http.ResponseWriter, r *http.Request) {
	if h.repository == nil {
		response.HistoryUnavailable(w, r, "history ingestion is not configured")
		return
	}

	var req models.TripHistoryRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	if err := h.repository.AddTrips(r.Context(), req.Trips); err != nil {
		h.logger.Error().Err(err).Int("trips", len(req.Trips)).Msg("failed to store trip history")
		response.InternalError(w, r, "failed to store trip history")
		return
	}
	response.Accepted(w, r, models.IngestResponse{Accepted: len(req.Trips)})
}

func (h *OpsHandler) dependencies() []models.DependencyStatus {
	if h.registry == nil {
		return []models.DependencyStatus{}
	}

	all := h.registry.GetAllHealth()
	deps := make([]models.DependencyStatus, 0, len(all))
	for _, dep := range all {
		status := models.DependencyStatus{
			Name:   dep.Name,
			Status: models.HealthStatusOK,
		}
		switch {
		case dep.IsUnhealthy():
			status.Status = models.HealthStatusFail
		case dep.IsDegraded():
			status.Status = models.HealthStatusDegraded
		}
		if dep.LastSuccessAt != nil {
			ts := models.Timestamp(*dep.LastSuccessAt)
			status.LastSuccessAt = &ts
		}
		if dep.LastFailureAt != nil {
			ts := models.Timestamp(*dep.LastFailureAt)
			status.LastFailureAt = &ts
		}
		if dep.LastError != "" {
			msg := dep.LastError
			status.Message = &msg
		}
		deps = append(deps, status)
	}
	return deps
}

// overallStatus degrades when any dependency is not closed.
func overallStatus(deps []models.DependencyStatus) models.HealthStatus {
	for _, d := range deps {
		if d.Status != models.HealthStatusOK {
			return models.HealthStatusDegraded
		}
	}
	return models.HealthStatusOK
}
