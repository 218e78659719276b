package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsScrapeTimeout = 10 * time.Second

var (
	registerOnce          sync.Once
	markingRequestsTotal  *prometheus.CounterVec
	markingLatencySeconds *prometheus.HistogramVec
	markingErrorsTotal    *prometheus.CounterVec
	gradingOutcomesTotal  *prometheus.CounterVec
	genreFallbacksTotal   *prometheus.CounterVec
	gradingDuration       *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the marking API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		markingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marking_requests_total",
			Help: "Total number of marking API requests served.",
		}, []string{"method", "route", "status"})

		markingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marking_latency_seconds",
			Help:    "Latency distribution for marking API requests.",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180, 300},
		}, []string{"method", "route"})

		markingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marking_errors_total",
			Help: "Total number of error responses returned by marking endpoints.",
		}, []string{"method", "route", "status"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marking_grading_outcomes_total",
			Help: "Grading attempts by outcome.",
		}, []string{"genre", "outcome"})

		genreFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marking_genre_fallbacks_total",
			Help: "Projects whose genre tag was not recognised and fell back to the default rubric.",
		}, []string{"tag_kind"})

		gradingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marking_grading_duration_seconds",
			Help:    "Duration of grading attempts that reached the generation service.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"genre"})

		prometheus.MustRegister(
			markingRequestsTotal,
			markingLatencySeconds,
			markingErrorsTotal,
			gradingOutcomesTotal,
			genreFallbacksTotal,
			gradingDuration,
		)
	})
}

// MarkingRequests exposes the counter for marking requests.
func MarkingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return markingRequestsTotal
}

// MarkingLatency exposes the latency histogram for marking requests.
func MarkingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return markingLatencySeconds
}

// MarkingErrors exposes the counter for marking error responses.
func MarkingErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return markingErrorsTotal
}

// GradingOutcomes counts grading attempts by genre and outcome.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// RecordGenreFallback counts a project whose genre tag fell back to the
// default rubric. The raw tag is free text, so only its kind is a label.
func RecordGenreFallback(tag string) {
	RegisterMetrics()
	kind := "other"
	if strings.TrimSpace(tag) == "" {
		kind = "empty"
	}
	genreFallbacksTotal.WithLabelValues(kind).Inc()
}

// GradingDuration exposes the end to end grading histogram.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDuration
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber, serving
// the marking collectors together with the generation client metrics.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	handler := promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Timeout:           metricsScrapeTimeout,
		}),
	)
	return adaptor.HTTPHandler(handler)
}
