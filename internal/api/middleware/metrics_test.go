package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/citytransit/opsengine/internal/api/middleware"
)

func newTestMetrics(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := middleware.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// requestTotals returns request counts keyed by route and status.
func requestTotals(t *testing.T, reader *sdkmetric.ManualReader) map[[2]string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[[2]string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
				out[[2]string{route.AsString(), status.AsString()}] += dp.Value
			}
		}
	}
	return out
}

func TestNewMetrics_GlobalProvider(t *testing.T) {
	m, err := middleware.NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestMetrics_Middleware_RecordsRoutePattern(t *testing.T) {
	m, reader := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/v1/ml/users/{userId}/recommendations", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ml/users/"+id+"/recommendations", http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	totals := requestTotals(t, reader)
	assert.Equal(t, int64(3), totals[[2]string{"/v1/ml/users/{userId}/recommendations", "200"}])
}

func TestMetrics_Middleware_RecordsErrors(t *testing.T) {
	m, reader := newTestMetrics(t)

	for _, code := range []int{http.StatusBadRequest, http.StatusInternalServerError} {
		rec := httptest.NewRecorder()
		m.Middleware()(statusHandler(code)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/dl/forecast", http.NoBody))
		assert.Equal(t, code, rec.Code)
	}

	totals := requestTotals(t, reader)
	assert.Equal(t, int64(1), totals[[2]string{"/v1/dl/forecast", "400"}])
	assert.Equal(t, int64(1), totals[[2]string{"/v1/dl/forecast", "500"}])
}
