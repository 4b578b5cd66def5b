package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	catalogLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askmesh_catalog_loads_total",
			Help: "Total number of schema catalog builds by result.",
		},
		[]string{"result"},
	)
	catalogTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askmesh_catalog_tables",
			Help: "Number of tables in the currently loaded schema catalog.",
		},
	)
	catalogLoadSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askmesh_catalog_load_seconds",
			Help:    "Schema catalog build latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	guardVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askmesh_guard_verdicts_total",
			Help: "Total number of SQL guard verdicts by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)
	modelCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askmesh_model_call_seconds",
			Help:    "Language model call latency in seconds by purpose and result.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"purpose", "result"},
	)
	queryExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askmesh_query_execution_seconds",
			Help:    "Authorized SQL execution latency in seconds by engine and result.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"engine", "result"},
	)
	queryRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askmesh_query_rows_total",
			Help: "Total number of rows returned by authorized SQL executions.",
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(
		catalogLoadsTotal,
		catalogTables,
		catalogLoadSeconds,
		guardVerdictsTotal,
		modelCallSeconds,
		queryExecutionSeconds,
		queryRowsTotal,
	)
}

func ObserveCatalogLoad(ok bool, tables int, elapsed time.Duration) {
	catalogLoadsTotal.WithLabelValues(resultLabel(ok)).Inc()
	catalogLoadSeconds.Observe(elapsed.Seconds())
	if ok {
		catalogTables.Set(float64(tables))
	}
}

// ObserveGuardVerdict counts one guard decision. reason is empty for
// authorized statements.
func ObserveGuardVerdict(authorized bool, reason string) {
	outcome := "authorized"
	if !authorized {
		outcome = "rejected"
	}
	if reason == "" {
		reason = "none"
	}
	guardVerdictsTotal.WithLabelValues(outcome, reason).Inc()
}

func ObserveModelCall(purpose string, ok bool, elapsed time.Duration) {
	modelCallSeconds.WithLabelValues(purpose, resultLabel(ok)).Observe(elapsed.Seconds())
}

func ObserveQueryExecution(engine string, ok bool, rows int, elapsed time.Duration) {
	queryExecutionSeconds.WithLabelValues(engine, resultLabel(ok)).Observe(elapsed.Seconds())
	if ok && rows > 0 {
		queryRowsTotal.WithLabelValues(engine).Add(float64(rows))
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
