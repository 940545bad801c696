package handler

import (
	"net/http"
	"strconv"

	"github.com/citytransit/opsengine/internal/api/models"
	"github.com/citytransit/opsengine/internal/api/response"
	"github.com/citytransit/opsengine/internal/featureflags"
	"github.com/citytransit/opsengine/internal/forecast"
	"github.com/citytransit/opsengine/internal/occupancy"
	"github.com/citytransit/opsengine/internal/sentiment"
)

// Quick forecast defaults.
const (
	defaultQuickRouteID = 1
	defaultQuickHorizon = 12
	maxQuickHorizon     = 168
)

// DLHandler serves the forecaster and the perception models.
type DLHandler struct {
	forecaster *forecast.Service
	sentiment  *sentiment.Service
	occupancy  *occupancy.Service
	flags      *featureflags.Service
	validator  *Validator
}

// DLHandlerConfig holds the dependencies of a DLHandler.
type DLHandlerConfig struct {
	Forecaster *forecast.Service
	Sentiment  *sentiment.Service
	Occupancy  *occupancy.Service
	Flags      *featureflags.Service
	Validator  *Validator
}

// NewDLHandler creates a new DLHandler.
func NewDLHandler(cfg DLHandlerConfig) *DLHandler {
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	return &DLHandler{
		forecaster: cfg.Forecaster,
		sentiment:  cfg.Sentiment,
		occupancy:  cfg.Occupancy,
		flags:      cfg.Flags,
		validator:  v,
	}
}

// Forecast handles POST /v1/dl/forecast.
func (h *DLHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	var req forecast.Request
	if !bind(w, r, h.validator, &req) {
		return
	}
	response.JSON(w, r, http.StatusOK, h.forecaster.Forecast(r.Context(), req))
}

// QuickForecast handles GET /v1/dl/forecast/quick?routeId=&hours=.
func (h *DLHandler) QuickForecast(w http.ResponseWriter, r *http.Request) {
	routeID, fieldErr := queryID(r, "routeId", defaultQuickRouteID)
	if fieldErr != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{*fieldErr})
		return
	}

	hours := defaultQuickHorizon
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxQuickHorizon {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "hours", Message: "must be an integer between 1 and 168", Code: "range"},
			})
			return
		}
		hours = n
	}

	response.JSON(w, r, http.StatusOK, h.forecaster.Forecast(r.Context(), forecast.Request{
		RouteID: routeID,
		Horizon: &hours,
	}))
}

// Sentiment handles POST /v1/dl/sentiment.
func (h *DLHandler) Sentiment(w http.ResponseWriter, r *http.Request) {
	var req sentiment.Request
	if !bind(w, r, h.validator, &req) {
		return
	}
	response.JSON(w, r, http.StatusOK, h.sentiment.Score(r.Context(), req))
}

// SentimentBatch handles POST /v1/dl/sentiment/batch.
func (h *DLHandler) SentimentBatch(w http.ResponseWriter, r *http.Request) {
	var req models.SentimentBatchRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	results := h.sentiment.ScoreBatch(r.Context(), req.Items)
	response.JSON(w, r, http.StatusOK, models.SentimentBatchResponse{
		Results: results,
		Total:   len(results),
	})
}

// QuickSentiment handles GET /v1/dl/sentiment/quick?text=.
func (h *DLHandler) QuickSentiment(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if len(text) > 5000 {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: "text", Message: "must be at most 5000 characters", Code: "max"},
		})
		return
	}
	response.JSON(w, r, http.StatusOK, h.sentiment.Score(r.Context(), sentiment.Request{Text: text}))
}

// Occupancy handles POST /v1/dl/occupancy.
func (h *DLHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	var req occupancy.Request
	if !bind(w, r, h.validator, &req) {
		return
	}
	response.JSON(w, r, http.StatusOK, h.occupancy.Analyze(r.Context(), req))
}

// OccupancyBatch handles POST /v1/dl/occupancy/batch.
func (h *DLHandler) OccupancyBatch(w http.ResponseWriter, r *http.Request) {
	var req models.OccupancyBatchRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	results := h.occupancy.AnalyzeBatch(r.Context(), req.Requests)
	response.JSON(w, r, http.StatusOK, models.OccupancyBatchResponse{
		Results: results,
		Total:   len(results),
	})
}

// OccupancyTrend handles POST /v1/dl/occupancy/trend.
func (h *DLHandler) OccupancyTrend(w http.ResponseWriter, r *http.Request) {
	var req models.OccupancyTrendRequest
	if !bind(w, r, h.validator, &req) {
		return
	}
	response.JSON(w, r, http.StatusOK, occupancy.Trend(req.RouteID, req.Analyses))
}

// Status handles GET /v1/dl/status.
func (h *DLHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.DLStatus{
		Enabled:   !h.flags.IsDeepLearningDisabled(r.Context()),
		Forecast:  h.forecaster.Status(),
		Sentiment: h.sentiment.IsLoaded(),
		Occupancy: h.occupancy.IsLoaded(),
	})
}
