package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/citytransit/opsengine/internal/api/middleware"
	"github.com/citytransit/opsengine/internal/api/models"
	"github.com/citytransit/opsengine/internal/api/response"
	"github.com/citytransit/opsengine/internal/auth"
	"github.com/citytransit/opsengine/internal/clustering"
	"github.com/citytransit/opsengine/internal/demand"
	"github.com/citytransit/opsengine/internal/history"
)

// MLHandler serves the demand predictor and the trip clusterer.
type MLHandler struct {
	predictor *demand.Predictor
	clusterer *clustering.Service
	trips     history.Source
	validator *Validator
	logger    zerolog.Logger
	now       func() time.Time
}

// MLHandlerConfig holds the dependencies of an MLHandler.
type MLHandlerConfig struct {
	Predictor *demand.Predictor
	Clusterer *clustering.Service

	// History supplies a rider's trips for recommendations.
	History history.Source

	Validator *Validator
	Logger    zerolog.Logger

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// NewMLHandler creates a new MLHandler.
func NewMLHandler(cfg MLHandlerConfig) *MLHandler {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	return &MLHandler{
		predictor: cfg.Predictor,
		clusterer: cfg.Clusterer,
		trips:     cfg.History,
		validator: v,
		logger:    cfg.Logger.With().Str("handler", "ml").Logger(),
		now:       now,
	}
}

// PredictDemand handles POST /v1/ml/predict-demand.
func (h *MLHandler) PredictDemand(w http.ResponseWriter, r *http.Request) {
	var input demand.Input
	if !bind(w, r, h.validator, &input) {
		return
	}
	record := demand.Enrich(input, h.now())
	response.JSON(w, r, http.StatusOK, h.predictor.Predict(r.Context(), record))
}

// PredictDemandBatch handles POST /v1/ml/predict-demand/batch.
func (h *MLHandler) PredictDemandBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchPredictionRequest
	if !bind(w, r, h.validator, &req) {
		return
	}

	now := h.now()
	records := make([]demand.FeatureRecord, len(req.Inputs))
	for i, in := range req.Inputs {
		records[i] = demand.Enrich(in, now)
	}

	predictions := h.predictor.PredictBatch(r.Context(), records)
	response.JSON(w, r, http.StatusOK, models.BatchPredictionResponse{
		Predictions: predictions,
		Total:       len(predictions),
	})
}

// QuickPredict handles GET /v1/ml/predict-demand/quick?routeId=&at=.
// Without at the slot one hour from now is predicted.
func (h *MLHandler) QuickPredict(w http.ResponseWriter, r *http.Request) {
	routeID, fieldErr := queryID(r, "routeId", 0)
	if fieldErr != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{*fieldErr})
		return
	}

	var at *time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "at", Message: "must be an RFC3339 timestamp", Code: "datetime"},
			})
			return
		}
		at = &parsed
	}

	record := demand.QuickRecord(routeID, at, h.now())
	response.JSON(w, r, http.StatusOK, h.predictor.Predict(r.Context(), record))
}

// Status handles GET /v1/ml/status.
func (h *MLHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.MLStatus{
		Demand:     h.predictor.Status(),
		Clustering: h.clusterer.Status(),
	})
}

// Clusters handles POST /v1/ml/clusters.
func (h *MLHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	var req models.ClusterRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	response.JSON(w, r, http.StatusOK, h.clusterer.Assign(r.Context(), req.Patterns))
}

// UserRecommendations handles GET /v1/ml/users/{userId}/recommendations.
// Riders may only read their own recommendations.
func (h *MLHandler) UserRecommendations(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "userId")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(w, r, "invalid path parameters", []models.FieldError{
			{Field: "userId", Message: "must be a positive integer", Code: "gt"},
		})
		return
	}

	if p, ok := middleware.GetPrincipal(r.Context()); ok && p.Role == auth.RoleRider && p.Subject != raw {
		response.Forbidden(w, r, "riders may only read their own recommendations")
		return
	}

	trips, err := h.trips.UserTrips(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to load user trips")
		if errors.Is(err, history.ErrUnavailable) {
			response.HistoryUnavailable(w, r, "trip history is unavailable")
			return
		}
		response.InternalError(w, r, "failed to load trip history")
		return
	}

	rec, err := h.clusterer.RecommendForUser(r.Context(), userID, trips)
	if errors.Is(err, clustering.ErrNoTrips) {
		response.NotFound(w, r, "no trips recorded for user "+raw)
		return
	}
	if err != nil {
		response.InternalError(w, r, "failed to build recommendations")
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}
