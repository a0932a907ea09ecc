// Package metrics exposes Prometheus metrics for the composite service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"route", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "composite_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	tilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_tiles_processed_total",
			Help: "Tiles processed, by script and outcome.",
		},
		[]string{"script", "outcome"},
	)

	orbitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_orbits_total",
			Help: "Orbits seen by pre-processing, by script and whether they were retained.",
		},
		[]string{"script", "state"},
	)

	pixelsEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_pixels_evaluated_total",
			Help: "Pixels passed through evaluatePixel.",
		},
		[]string{"script"},
	)

	tileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "composite_tile_duration_seconds",
			Help:    "Time to process one tile.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"script"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(tilesProcessedTotal)
	prometheus.MustRegister(orbitsTotal)
	prometheus.MustRegister(pixelsEvaluatedTotal)
	prometheus.MustRegister(tileDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTile records the outcome of one tile run.
func ObserveTile(script string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tilesProcessedTotal.WithLabelValues(script, outcome).Inc()
	tileDurationSeconds.WithLabelValues(script).Observe(duration.Seconds())
}

// ObserveOrbits records how many orbits pre-processing kept and dropped.
func ObserveOrbits(script string, retained, dropped int) {
	orbitsTotal.WithLabelValues(script, "retained").Add(float64(retained))
	orbitsTotal.WithLabelValues(script, "dropped").Add(float64(dropped))
}

// AddPixels records evaluated pixels.
func AddPixels(script string, n int) {
	pixelsEvaluatedTotal.WithLabelValues(script).Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
// Requests are labelled by chi route pattern so path parameters do not
// create new series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routeLabel(r)
		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "other"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "other"
}
