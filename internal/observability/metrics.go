package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Fill run metrics
	FillRunsTotal      *prometheus.CounterVec
	FillRunDuration    *prometheus.HistogramVec
	QuestionsDetected  prometheus.Counter
	QuestionsFilled    prometheus.Counter
	AnswersResolved    *prometheus.CounterVec
	FormPagesTraversed *prometheus.HistogramVec
	RunsActive         prometheus.Gauge

	// Claude API metrics
	ClaudeRequestsTotal   *prometheus.CounterVec
	ClaudeRequestDuration *prometheus.HistogramVec
	ClaudeCacheHits       prometheus.Counter
	ClaudeCacheMisses     prometheus.Counter

	// Embedding metrics
	EmbeddingRequestsTotal   *prometheus.CounterVec
	EmbeddingRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new metrics instance with all Prometheus metrics registered
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "formpilot"
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		// Fill run metrics
		FillRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fill_runs_total",
				Help:      "Total number of form fill runs",
			},
			[]string{"status", "triggered_by"},
		),
		FillRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fill_run_duration_seconds",
				Help:      "Form fill run duration in seconds",
				Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		QuestionsDetected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_detected_total",
				Help:      "Total number of form questions detected",
			},
		),
		QuestionsFilled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_filled_total",
				Help:      "Total number of form questions filled",
			},
		),
		AnswersResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_resolved_total",
				Help:      "Total number of answers resolved, by source",
			},
			[]string{"source"},
		),
		FormPagesTraversed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "form_pages_traversed",
				Help:      "Number of form pages traversed per run",
				Buckets:   []float64{1, 2, 3, 5, 8, 10},
			},
			[]string{"status"},
		),
		RunsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fill_runs_active",
				Help:      "Number of fill runs currently executing",
			},
		),

		// Claude API metrics
		ClaudeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claude_requests_total",
				Help:      "Total number of Claude API requests",
			},
			[]string{"model", "status"},
		),
		ClaudeRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "claude_request_duration_seconds",
				Help:      "Claude API request duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"model"},
		),
		ClaudeCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claude_cache_hits_total",
				Help:      "Total number of cache hits",
			},
		),
		ClaudeCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claude_cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),

		// Embedding metrics
		EmbeddingRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Total number of embedding API requests",
			},
			[]string{"model", "status"},
		),
		EmbeddingRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_request_duration_seconds",
				Help:      "Embedding API request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"model"},
		),
	}

	return m
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFillRun records the outcome of one fill run
func (m *Metrics) RecordFillRun(status, triggeredBy string, duration time.Duration) {
	m.FillRunsTotal.WithLabelValues(status, triggeredBy).Inc()
	m.FillRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordQuestions records per-run question counts
func (m *Metrics) RecordQuestions(detected, filled int) {
	m.QuestionsDetected.Add(float64(detected))
	m.QuestionsFilled.Add(float64(filled))
}

// RecordAnswerSource records one resolved answer by its source
func (m *Metrics) RecordAnswerSource(source string) {
	m.AnswersResolved.WithLabelValues(source).Inc()
}

// RecordPagesTraversed records how many form pages one run visited
func (m *Metrics) RecordPagesTraversed(status string, pages int) {
	m.FormPagesTraversed.WithLabelValues(status).Observe(float64(pages))
}

// RecordClaudeRequest records Claude API metrics
func (m *Metrics) RecordClaudeRequest(model, status string, duration time.Duration) {
	m.ClaudeRequestsTotal.WithLabelValues(model, status).Inc()
	m.ClaudeRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordClaudeCacheHit counts an answer served from the response cache
func (m *Metrics) RecordClaudeCacheHit() { m.ClaudeCacheHits.Inc() }

// RecordClaudeCacheMiss counts an answer that required an API call
func (m *Metrics) RecordClaudeCacheMiss() { m.ClaudeCacheMisses.Inc() }

// RecordEmbeddingRequest records embedding API metrics
func (m *Metrics) RecordEmbeddingRequest(model, status string, duration time.Duration) {
	m.EmbeddingRequestsTotal.WithLabelValues(model, status).Inc()
	m.EmbeddingRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}
