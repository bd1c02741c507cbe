package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptevo_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptevo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptevo_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"model", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptevo_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})

	LLMRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptevo_llm_retries_total",
		Help: "LLM call retries scheduled by the backoff policy",
	}, []string{"purpose"})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptevo_llm_circuit_state",
		Help: "LLM circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	EvaluationRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptevo_evaluation_rows_total",
		Help: "Rows evaluated, by outcome (correct, incorrect, unlabeled, failed)",
	}, []string{"outcome"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptevo_evaluation_duration_seconds",
		Help:    "Wall time of one full-dataset evaluation",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	EvaluationAccuracy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "promptevo_evaluation_accuracy",
		Help: "Accuracy of the latest evaluation, by phase",
	}, []string{"phase"})

	EvolutionIterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptevo_evolution_iterations_total",
		Help: "Completed evolution iterations",
	})

	RevisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptevo_revisions_total",
		Help: "Prompt revisions, by outcome (revised, fallback)",
	}, []string{"strategy", "outcome"})

	ProgressSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptevo_progress_subscribers",
		Help: "Open progress stream subscriptions",
	})
)
