package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// histogramFor writes the current state of one duration series into a dto
// metric so tests can read its sample count and buckets.
func histogramFor(t *testing.T, labels prometheus.Labels) *dto.Histogram {
	t.Helper()
	obs, err := httpRequestDuration.GetMetricWith(labels)
	require.NoError(t, err)
	metric, ok := obs.(prometheus.Metric)
	require.True(t, ok)

	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	require.NotNil(t, out.GetHistogram())
	return out.GetHistogram()
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	const svc = "metrics-route-test"

	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Delete("/api/index/listings/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/index/listings/"+id, nil))
	}

	counter := httpRequestsTotal.With(prometheus.Labels{
		"service": svc,
		"method":  http.MethodDelete,
		"route":   "/api/index/listings/{id}",
		"status":  "204",
	})
	assert.Equal(t, float64(3), testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))

	hist := histogramFor(t, prometheus.Labels{
		"service": svc,
		"method":  http.MethodDelete,
		"route":   "/api/index/listings/{id}",
		"status":  "204",
	})
	assert.Equal(t, uint64(3), hist.GetSampleCount())
	require.Len(t, hist.GetBucket(), 12)
	assert.InDelta(t, 30, hist.GetBucket()[11].GetUpperBound(), 1e-9)
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	const svc = "metrics-unmatched-test"

	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/api/search", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	counter := httpRequestsTotal.With(prometheus.Labels{
		"service": svc,
		"method":  http.MethodGet,
		"route":   unmatchedRoute,
		"status":  "404",
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestPrometheusMetrics_DefaultStatusIsOK(t *testing.T) {
	const svc = "metrics-default-status-test"

	h := PrometheusMetrics(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	counter := httpRequestsTotal.With(prometheus.Labels{
		"service": svc,
		"method":  http.MethodGet,
		"route":   unmatchedRoute,
		"status":  "200",
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}
