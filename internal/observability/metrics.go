package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Turn outcomes recorded by ObserveTurn.
const (
	OutcomeSuccess         = "success"
	OutcomeGenerationError = "generation_error"
	OutcomeRejected        = "rejected"
	OutcomeExecutionError  = "execution_error"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_turns_total",
			Help: "Total number of processed questions by outcome.",
		},
		[]string{"outcome"},
	)
	completionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_completion_duration_seconds",
			Help:    "LLM completion latency by status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)
	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_sql_execution_duration_seconds",
			Help:    "SQL execution latency by status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	resultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlassist_result_rows",
			Help:    "Rows materialized per successful statement.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_guard_rejections_total",
			Help: "Generated statements rejected by the statement guard, by leading keyword.",
		},
		[]string{"keyword"},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		completionDurationSeconds,
		executionDurationSeconds,
		resultRows,
		guardRejectionsTotal,
	)
}

func ObserveTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveCompletion(elapsed time.Duration, err error) {
	completionDurationSeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration, rows int, err error) {
	executionDurationSeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
	if err == nil {
		resultRows.Observe(float64(rows))
	}
}

func IncrementGuardRejection(keyword string) {
	if keyword == "" {
		keyword = "unknown"
	}
	guardRejectionsTotal.WithLabelValues(keyword).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
