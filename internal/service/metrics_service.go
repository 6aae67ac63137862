package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	upstream        *prometheus.HistogramVec
	validations     *prometheus.CounterVec
	validationErrs  *prometheus.CounterVec
	commits         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	repairs         *prometheus.CounterVec
	activeSessions  *prometheus.GaugeVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "school_api_request_duration_seconds",
			Help:    "Duration of calls to the school API",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_validations_total",
			Help: "Candidate validations by result",
		}, []string{"result"}),
		validationErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_validation_errors_total",
			Help: "Validation errors by type",
		}, []string{"type"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_commits_total",
			Help: "Assignment commits by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_wizard_transitions_total",
			Help: "Wizard step transitions",
		}, []string{"from", "to"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_repairs_total",
			Help: "Repair loop applications by kind",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "assignment_sessions_active",
			Help: "Open wizard sessions and drafts",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_cache_lookups_total",
			Help: "Reference cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reference_cache_latency_seconds",
			Help:    "Latency for reference cache operations",
			Buckets: prometheus.DefBuckets,
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.upstream, m.validations, m.validationErrs,
		m.commits, m.transitions, m.repairs, m.activeSessions, m.cacheLookups, m.cacheLatency, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records inbound request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveUpstream records a call to the school API.
func (m *MetricsService) ObserveUpstream(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(operation, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
}

// RecordValidation counts an outcome and each of its error types.
func (m *MetricsService) RecordValidation(outcome *models.ValidationOutcome) {
	if m == nil || outcome == nil {
		return
	}
	result := "valid"
	switch {
	case outcome.HasErrorType(models.ErrorTypeAPI):
		result = "api_error"
	case !outcome.Valid:
		result = "invalid"
	}
	m.validations.WithLabelValues(result).Inc()
	for _, e := range outcome.Errors {
		m.validationErrs.WithLabelValues(e.Type).Inc()
	}
}

// RecordCommit counts a commit attempt.
func (m *MetricsService) RecordCommit(outcome models.SubmissionOutcome) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(string(outcome)).Inc()
}

// RecordTransition counts a wizard step change.
func (m *MetricsService) RecordTransition(from, to models.WizardStep) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRepair counts a repair application.
func (m *MetricsService) RecordRepair(kind RepairKind) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(string(kind)).Inc()
}

// SetActiveSessions publishes the number of live sessions of a kind.
func (m *MetricsService) SetActiveSessions(kind string, count int) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(kind).Set(float64(count))
}

// RecordCacheOperation records a reference cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.Observe(duration.Seconds())
}
