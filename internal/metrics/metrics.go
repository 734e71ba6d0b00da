package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coach_engine"

// AI provider metrics (incremented at the operation boundary).
var (
	AIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_requests_total",
		Help:      "AI provider operations by outcome.",
	}, []string{"provider", "operation", "status"})

	AIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ai_request_duration_seconds",
		Help:      "AI provider operation duration in seconds, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms → ~51s
	}, []string{"provider", "operation"})

	AIRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_retries_total",
		Help:      "Retry attempts against AI providers.",
	}, []string{"provider", "operation"})

	AIConfidence = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ai_confidence",
		Help:      "Confidence scores attached to successful results.",
		Buckets:   prometheus.LinearBuckets(0.0, 0.1, 11), // 0.0 → 1.0
	}, []string{"provider", "operation"})
)

// Pipeline counters (incremented directly by the worker pool and scheduler).
var (
	TranscribeJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcribe_jobs_total",
		Help:      "Transcription jobs by outcome.",
	}, []string{"status"}) // ok, error, dropped

	InsightRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insight_runs_total",
		Help:      "Scheduled insight generations by outcome.",
	}, []string{"status"})

	ArchivedFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archived_files_total",
		Help:      "Recordings archived after transcription.",
	}, []string{"backend"})
)

// HTTP metrics for the ops listener.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		AIRequestsTotal,
		AIRequestDuration,
		AIRetriesTotal,
		AIConfidence,
		TranscribeJobsTotal,
		InsightRunsTotal,
		ArchivedFilesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveAIRequest records one completed provider operation.
func ObserveAIRequest(provider, operation string, success bool, elapsed time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	AIRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// InstrumentHandler returns middleware that records HTTP request metrics for
// the ops listener. It uses chi's route pattern as the path label to avoid
// cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
