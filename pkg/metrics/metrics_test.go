package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/order-platform/pkg/metrics"
)

func TestServerMetrics_Middleware(t *testing.T) {
	m := metrics.NewServerMetrics("order-service")

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/orders/a", "/api/orders/b", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/api/orders/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/health", "200")))
}

func TestServerMetrics_Handler(t *testing.T) {
	m := metrics.NewServerMetrics("catalog-service")
	created := m.NewCounterVec("items_created_total", "Items created.", "result")
	created.WithLabelValues("ok").Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orderplatform_catalog_service_items_created_total")
}

func TestNewServerMetrics_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewServerMetrics("user-service")
		metrics.NewServerMetrics("user-service")
	})
}
