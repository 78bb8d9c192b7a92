// Package observability holds the process-wide Prometheus metrics for the
// execution pipeline. Metrics are registered on the default registry and
// exposed through the server's /metrics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeErrored   = "errored"
	OutcomeCancelled = "cancelled"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Name:      "executions_total",
		Help:      "Task executions by outcome.",
	}, []string{"outcome"})

	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskpilot",
		Name:      "execution_duration_seconds",
		Help:      "End-to-end duration of streamed task executions.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	contentChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Name:      "content_chunks_total",
		Help:      "Streamed content chunks emitted to clients.",
	})

	searchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Name:      "search_calls_total",
		Help:      "Web search calls by result status.",
	}, []string{"status"})

	followupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Name:      "followups_total",
		Help:      "Follow-up responses by outcome.",
	}, []string{"outcome"})

	persistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpilot",
		Name:      "persist_failures_total",
		Help:      "Completions that streamed but failed to persist.",
	})
)

func ObserveExecution(outcome string, duration time.Duration) {
	executionsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		executionDuration.Observe(duration.Seconds())
	}
}

func IncContentChunks() {
	contentChunksTotal.Inc()
}

// ObserveSearch records one search call; status is "hit" when results came
// back, "empty" otherwise.
func ObserveSearch(resultCount int) {
	status := "empty"
	if resultCount > 0 {
		status = "hit"
	}
	searchCallsTotal.WithLabelValues(status).Inc()
}

func ObserveFollowUp(outcome string) {
	followupsTotal.WithLabelValues(outcome).Inc()
}

func IncPersistFailures() {
	persistFailuresTotal.Inc()
}
