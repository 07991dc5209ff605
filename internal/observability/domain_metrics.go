package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gateVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgate_gate_verdicts_total",
			Help: "Policy gate verdicts by outcome (accepted or rejection reason).",
		},
		[]string{"verdict"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgate_query_executions_total",
			Help: "Warehouse executions by outcome (ok or failure kind).",
		},
		[]string{"outcome"},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckgate_query_duration_ms",
			Help:    "Warehouse execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckgate_query_rows_returned",
			Help:    "Rows returned per successful execution, after truncation.",
			Buckets: []float64{1, 10, 50, 100, 200, 500, 1000, 5000, 10000},
		},
	)
	queryTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckgate_query_truncations_total",
			Help: "Executions where the engine returned more rows than the ceiling.",
		},
	)
	translateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgate_translate_requests_total",
			Help: "Natural-language translation requests by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		gateVerdictsTotal,
		queryExecutionsTotal,
		queryDurationMs,
		queryRowsReturned,
		queryTruncationsTotal,
		translateRequestsTotal,
	)
}

func ObserveGateVerdict(verdict string) {
	gateVerdictsTotal.WithLabelValues(verdict).Inc()
}

func ObserveQueryExecution(outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQueryRows(rows int, truncated bool) {
	queryRowsReturned.Observe(float64(rows))
	if truncated {
		queryTruncationsTotal.Inc()
	}
}

func ObserveTranslate(outcome string) {
	translateRequestsTotal.WithLabelValues(outcome).Inc()
}
