package maintenance

import "github.com/prometheus/client_golang/prometheus"

const (
	jobRetention = "audit_retention"
	jobIntegrity = "integrity"
)

var (
	maintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askmesh_maintenance_runs_total",
			Help: "Total number of maintenance job runs by job and status.",
		},
		[]string{"job", "status"},
	)
	auditEntriesPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askmesh_audit_entries_pruned_total",
			Help: "Total number of audit entries deleted by retention runs.",
		},
	)
	integrityObjectsCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askmesh_integrity_objects_checked_total",
			Help: "Total number of table objects checked by integrity validation.",
		},
	)
	integrityIssuesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askmesh_integrity_issues_total",
			Help: "Total number of issues detected by integrity validation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		maintenanceRunsTotal,
		auditEntriesPrunedTotal,
		integrityObjectsCheckedTotal,
		integrityIssuesTotal,
	)
}
