// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LeadsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_leads_added_total",
			Help: "Total number of new leads persisted and pushed to the CRM",
		},
		[]string{"cluster"},
	)

	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_duplicates_suppressed_total",
			Help: "Total number of candidate records dropped as duplicates",
		},
		[]string{"cluster"},
	)

	RunsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_runs_processed_total",
			Help: "Total number of upstream runs absorbed into the ledger",
		},
		[]string{"cluster"},
	)

	RunFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_run_fetch_failures_total",
			Help: "Total number of upstream runs skipped after a fetch error",
		},
		[]string{"cluster"},
	)

	ListsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_lists_created_total",
			Help: "Total number of CRM prospecting lists created",
		},
		[]string{"cluster"},
	)

	ClusterMigrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadsync_cluster_migration_duration_seconds",
			Help:    "Duration of a single cluster migration pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"cluster"},
	)

	MigrationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadsync_migrations_active",
			Help: "Whether a full migration run is currently in flight (0 or 1)",
		},
	)
)
