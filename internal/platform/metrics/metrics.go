// Package metrics exposes Prometheus collectors for the HTTP surface and the
// review engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Review engine metrics
	recomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_recomputes_total",
			Help: "Total number of review recomputes by resulting category",
		},
		[]string{"category"},
	)

	recomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_recompute_duration_seconds",
			Help:    "Time spent evaluating rules and rendering the report",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	ruleFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_rule_faults_total",
			Help: "Total number of rule blocks that failed during evaluation",
		},
		[]string{"rule"},
	)

	importsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_imports_total",
			Help: "Total number of note imports",
		},
	)

	importedFields = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_import_fields",
			Help:    "Number of fields written by one import",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
		},
	)

	snapshotErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_snapshot_errors_total",
			Help: "Total number of failed snapshot store operations",
		},
		[]string{"op"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_active_sessions",
			Help: "Number of review sessions held in memory",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. The route template is used
// as the path label so session IDs do not blow up cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Review metric helpers ---

// RecordRecompute records one evaluation pass.
func RecordRecompute(category string, d time.Duration) {
	recomputesTotal.WithLabelValues(category).Inc()
	recomputeDuration.Observe(d.Seconds())
}

// RecordRuleFault records a rule block that failed.
func RecordRuleFault(rule string) {
	ruleFaultsTotal.WithLabelValues(rule).Inc()
}

// RecordImport records a note import and how many fields it wrote.
func RecordImport(fields int) {
	importsTotal.Inc()
	importedFields.Observe(float64(fields))
}

// RecordSnapshotError records a failed snapshot store call.
func RecordSnapshotError(op string) {
	snapshotErrorsTotal.WithLabelValues(op).Inc()
}

// SetActiveSessions records how many sessions are live.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
