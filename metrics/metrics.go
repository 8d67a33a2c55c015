package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coreybb/horoscope/gemini"
	"github.com/coreybb/horoscope/models"
)

const namespace = "horoscope"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "route"},
	)

	dispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Daily reading runs by outcome.",
		},
		[]string{"outcome"},
	)

	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a daily reading run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
	)

	dispatchUsers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "users_total",
			Help:      "Per-user results of daily reading runs.",
		},
		[]string{"result", "stage"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gemini",
			Name:      "generations_total",
			Help:      "Text generation calls by prompt kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gemini",
			Name:      "generation_duration_seconds",
			Help:      "Latency of text generation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"kind"},
	)
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Generation outcomes.
const (
	GenerationOK              = "ok"
	GenerationError           = "error"
	GenerationCredentialError = "credential_error"
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		dispatchRuns,
		dispatchDuration,
		dispatchUsers,
		generations,
		generationDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled with the chi route pattern so path parameters do
// not explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordDispatchRun records one daily reading run.
func RecordDispatchRun(outcome string, duration time.Duration) {
	dispatchRuns.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		dispatchDuration.Observe(duration.Seconds())
	}
}

// RecordDispatchUsers adds a run's per-user tallies. Failures are labelled
// with the stage that failed.
func RecordDispatchUsers(result models.DispatchResult) {
	dispatchUsers.WithLabelValues("succeeded", "").Add(float64(result.Succeeded))
	for _, f := range result.Failures {
		dispatchUsers.WithLabelValues("failed", string(f.Stage)).Inc()
	}
}

// RecordGeneration records one call to the text generator.
func RecordGeneration(kind, outcome string, duration time.Duration) {
	generations.WithLabelValues(kind, outcome).Inc()
	generationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveGeneration classifies err and records a generation that began at start.
func ObserveGeneration(kind string, start time.Time, err error) {
	outcome := GenerationOK
	switch {
	case gemini.IsCredentialError(err):
		outcome = GenerationCredentialError
	case err != nil:
		outcome = GenerationError
	}
	RecordGeneration(kind, outcome, time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
