package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransit/opsengine/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)

	p.WithDetail("routeId must be greater than 0").
		WithInstance("/v1/ml/predict-demand").
		WithErrors([]models.FieldError{{Field: "routeId", Message: "must be greater than 0", Code: "gt"}})

	assert.Equal(t, "routeId must be greater than 0", p.Detail)
	assert.Equal(t, "/v1/ml/predict-demand", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "gt", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "horizonHours", Message: "must be at most 168"},
	})
	p.Instance = "/v1/dl/forecast"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/v1/dl/forecast", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "horizonHours", result.Errors[0].Field)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Problem
		typ    string
		title  string
		status int
	}{
		{"bad request", models.NewBadRequest("req_1", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"unauthorized", models.NewUnauthorized("req_1", "d"), models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"forbidden", models.NewForbidden("req_1", "d"), models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req_1", "d"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"too many", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
		{"history unavailable", models.NewHistoryUnavailable("req_1", "d"), models.ProblemTypeHistoryUnavailable, "Ride history unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.p.Type)
			assert.Equal(t, tt.title, tt.p.Title)
			assert.Equal(t, tt.status, tt.p.Status)
			assert.Equal(t, "d", tt.p.Detail)
			assert.Equal(t, "req_1", tt.p.TraceID)
		})
	}
}

func TestNewTrainingFailed(t *testing.T) {
	p := models.NewTrainingFailed("req_1", map[string]string{
		"forecast":   "insufficient training data: 12 points, need 50",
		"clustering": "insufficient training data: 3 patterns, need 50",
		"demand":     "insufficient training data: 10 records, need 50",
	})

	assert.Equal(t, models.ProblemTypeTrainingFailed, p.Type)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.Equal(t, "no model could be trained", p.Detail)
	require.Len(t, p.Errors, 3)

	fields := []string{p.Errors[0].Field, p.Errors[1].Field, p.Errors[2].Field}
	assert.Equal(t, []string{"clustering", "demand", "forecast"}, fields)
	for _, e := range p.Errors {
		assert.Equal(t, models.CodeTrainingFailed, e.Code)
		assert.Contains(t, e.Message, "insufficient training data")
	}
}
