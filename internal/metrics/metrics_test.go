package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversionMetrics(reg)

	m.Observe("success", 2*time.Second, 50_000)
	m.Observe("success", time.Second, 0)
	m.Observe("timeout", 120*time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Total.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Total.WithLabelValues("timeout")))

	m.Started()
	m.Started()
	m.Finished()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InProgress))

	m.Queued(1)
	m.Queued(-1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Waiting))
}

func TestConversionMetrics_NilSafe(t *testing.T) {
	var m *ConversionMetrics
	assert.NotPanics(t, func() {
		m.Observe("success", time.Second, 10)
		m.Started()
		m.Finished()
		m.Queued(1)
	})
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/download/:filename", func(c echo.Context) error {
		return c.String(http.StatusNotFound, "missing")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/download/a.gif", "/download/b.gif", "/health"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/download/:filename", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}
