package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_backoffice_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qa_backoffice_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Validation pipeline metrics
	runsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_backoffice_runs_started_total",
			Help: "Total number of validation runs started",
		},
		[]string{"environment"},
	)

	runItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_backoffice_run_items_total",
			Help: "Run items executed by outcome",
		},
		[]string{"environment", "outcome"},
	)

	agentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qa_backoffice_agent_call_duration_seconds",
			Help:    "Remote agent call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"environment"},
	)

	judgeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_backoffice_judge_calls_total",
			Help: "LLM judge calls by outcome",
		},
		[]string{"outcome"},
	)

	judgeCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_backoffice_judge_call_duration_seconds",
			Help:    "LLM judge call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	status := "unknown"
	switch {
	case statusCode >= 200 && statusCode < 300:
		status = "2xx"
	case statusCode >= 300 && statusCode < 400:
		status = "3xx"
	case statusCode >= 400 && statusCode < 500:
		status = "4xx"
	case statusCode >= 500:
		status = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordRunStarted records a started validation run
func RecordRunStarted(environment string) {
	runsStartedTotal.WithLabelValues(environment).Inc()
}

// RecordRunItem records one executed run item with its outcome ("ok" or "error")
func RecordRunItem(environment, outcome string, durationSeconds float64) {
	runItemsTotal.WithLabelValues(environment, outcome).Inc()
	agentCallDuration.WithLabelValues(environment).Observe(durationSeconds)
}

// RecordJudgeCall records one LLM judge call with its outcome ("ok" or "error")
func RecordJudgeCall(outcome string, durationSeconds float64) {
	judgeCallsTotal.WithLabelValues(outcome).Inc()
	judgeCallDuration.Observe(durationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
