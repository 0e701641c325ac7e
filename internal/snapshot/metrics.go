package snapshot

import "github.com/prometheus/client_golang/prometheus"

var (
	exportRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_export_runs_total",
			Help: "Total number of snapshot exports by status.",
		},
		[]string{"status"},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_export_rows_total",
			Help: "Total number of rows written by snapshot exports.",
		},
	)
	snapshotsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_pruned_total",
			Help: "Total number of snapshots deleted by pruning.",
		},
	)
	verifyRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_verify_runs_total",
			Help: "Total number of snapshot integrity checks by status.",
		},
		[]string{"status"},
	)
	verifyMissingFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_verify_missing_files_total",
			Help: "Total number of snapshot files found missing by integrity checks.",
		},
	)
	verifySizeMismatchFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batalla_snapshot_verify_size_mismatch_files_total",
			Help: "Total number of snapshot files whose size differs from the manifest.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		exportRunsTotal,
		exportRowsTotal,
		snapshotsPrunedTotal,
		verifyRunsTotal,
		verifyMissingFilesTotal,
		verifySizeMismatchFilesTotal,
	)
}
