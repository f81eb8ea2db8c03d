package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Step emission forms, used as the "form" label
const (
	StepFormFixture     = "fixture"
	StepFormCode        = "code"
	StepFormSynthesized = "synthesized"
	StepFormPlaceholder = "placeholder"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Consolidation metrics
	ScriptsAssembled    *prometheus.CounterVec
	StepsEmitted        *prometheus.CounterVec
	GenerationFallbacks *prometheus.CounterVec
	ScriptCacheLookups  *prometheus.CounterVec
	ScriptWrites        *prometheus.CounterVec

	// Versioning metrics
	VersionsRecorded  prometheus.Counter
	VersionsDebounced prometheus.Counter
	VersionFailures   prometheus.Counter
	VersionsRestored  prometheus.Counter

	// Code generation metrics
	CodeGenRequests *prometheus.CounterVec
	CodeGenDuration *prometheus.HistogramVec
	CodeGenTokens   *prometheus.CounterVec
}

// NewMetrics creates a metrics instance registered on its own registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stepforge"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		ScriptsAssembled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scripts_assembled_total",
				Help:      "Total number of scripts assembled",
			},
			[]string{"mode", "outcome"}, // outcome: full, empty
		),
		StepsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_emitted_total",
				Help:      "Steps emitted into assembled scripts by form",
			},
			[]string{"form"},
		),
		GenerationFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_fallbacks_total",
				Help:      "Steps that fell back to placeholder code",
			},
			[]string{"reason"}, // missing_code, generation_error
		),
		ScriptCacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_cache_lookups_total",
				Help:      "Script cache lookups by result",
			},
			[]string{"result"},
		),
		ScriptWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_writes_total",
				Help:      "Script file writes by target and status",
			},
			[]string{"target", "status"},
		),

		VersionsRecorded: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "versions_recorded_total",
				Help:      "Version snapshots written",
			},
		),
		VersionsDebounced: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "versions_debounced_total",
				Help:      "Version snapshots skipped by the debounce window",
			},
		),
		VersionFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_failures_total",
				Help:      "Version snapshots that failed to persist",
			},
		),
		VersionsRestored: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "versions_restored_total",
				Help:      "Versions restored onto live test cases",
			},
		),

		CodeGenRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codegen_requests_total",
				Help:      "Code generation requests to the AI service",
			},
			[]string{"operation", "status"},
		),
		CodeGenDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "codegen_request_duration_seconds",
				Help:      "Code generation request duration in seconds",
				Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"operation"},
		),
		CodeGenTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codegen_tokens_total",
				Help:      "Tokens consumed by code generation",
			},
			[]string{"type"}, // input, output
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAssembly records one assembled script
func (m *Metrics) RecordAssembly(mode string, empty bool) {
	if m == nil {
		return
	}
	outcome := "full"
	if empty {
		outcome = "empty"
	}
	m.ScriptsAssembled.WithLabelValues(mode, outcome).Inc()
}

// RecordStepEmitted records a step emitted in the given form
func (m *Metrics) RecordStepEmitted(form string) {
	if m == nil {
		return
	}
	m.StepsEmitted.WithLabelValues(form).Inc()
}

// RecordFallback records a placeholder substitution
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.GenerationFallbacks.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a script cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ScriptCacheLookups.WithLabelValues(result).Inc()
}

// RecordScriptWrite records a script write to a target (file, object store)
func (m *Metrics) RecordScriptWrite(target string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ScriptWrites.WithLabelValues(target, status).Inc()
}

// RecordVersion records the outcome of a version snapshot attempt
func (m *Metrics) RecordVersion(created, debounced bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.VersionFailures.Inc()
	case debounced:
		m.VersionsDebounced.Inc()
	case created:
		m.VersionsRecorded.Inc()
	}
}

// RecordRestore records a restored version
func (m *Metrics) RecordRestore() {
	if m == nil {
		return
	}
	m.VersionsRestored.Inc()
}

// RecordCodeGen records an AI code generation request
func (m *Metrics) RecordCodeGen(operation string, err error, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CodeGenRequests.WithLabelValues(operation, status).Inc()
	m.CodeGenDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.CodeGenTokens.WithLabelValues("input").Add(float64(inputTokens))
	m.CodeGenTokens.WithLabelValues("output").Add(float64(outputTokens))
}

// HTTPMiddleware returns middleware for recording HTTP metrics. Routes are
// labelled by their chi pattern to keep cardinality bounded.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the underlying writer for streaming responses
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
