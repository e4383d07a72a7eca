// Package metrics exposes Prometheus collectors for the HTTP server and
// the conversion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gifmaker"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware returns an Echo middleware that records HTTP metrics.
// It skips /metrics, /health and websocket upgrades.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/api/ws/") {
				return next(c)
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(c.Response().Status)
				m.RequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(v)
				m.RequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			return err
		}
	}
}

// ConversionMetrics tracks ffmpeg runs.
type ConversionMetrics struct {
	Total       *prometheus.CounterVec
	Duration    prometheus.Histogram
	OutputBytes prometheus.Histogram
	InProgress  prometheus.Gauge
	Waiting     prometheus.Gauge
}

// NewConversionMetrics creates and registers conversion metrics.
func NewConversionMetrics(reg prometheus.Registerer) *ConversionMetrics {
	m := &ConversionMetrics{
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "total",
			Help:      "Conversions by result (success, failed, timeout, cancelled).",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "duration_seconds",
			Help:      "Wall time of ffmpeg conversions.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		OutputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "output_bytes",
			Help:      "Size of generated GIFs.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
		InProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "in_progress",
			Help:      "Conversions currently running.",
		}),
		Waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversion",
			Name:      "waiting",
			Help:      "Conversions waiting for a free slot.",
		}),
	}

	reg.MustRegister(m.Total, m.Duration, m.OutputBytes, m.InProgress, m.Waiting)
	return m
}

// Observe records a finished conversion. A nil receiver is a no-op so
// callers can run without metrics.
func (m *ConversionMetrics) Observe(result string, elapsed time.Duration, outputBytes int64) {
	if m == nil {
		return
	}
	m.Total.WithLabelValues(result).Inc()
	m.Duration.Observe(elapsed.Seconds())
	if outputBytes > 0 {
		m.OutputBytes.Observe(float64(outputBytes))
	}
}

// Started marks a conversion as running.
func (m *ConversionMetrics) Started() {
	if m == nil {
		return
	}
	m.InProgress.Inc()
}

// Finished reverses Started.
func (m *ConversionMetrics) Finished() {
	if m == nil {
		return
	}
	m.InProgress.Dec()
}

// Queued adjusts the waiting gauge by delta.
func (m *ConversionMetrics) Queued(delta float64) {
	if m == nil {
		return
	}
	m.Waiting.Add(delta)
}
