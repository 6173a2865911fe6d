package reaper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_deleted_rows_total",
			Help: "Rows hard-deleted by the retention reaper.",
		},
		[]string{"table", "reason"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_runs_total",
			Help: "Retention reaper runs by outcome.",
		},
		[]string{"outcome"},
	)

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reaper_run_duration_seconds",
		Help:    "Duration of successful retention reaper runs.",
		Buckets: prometheus.DefBuckets,
	})
)
