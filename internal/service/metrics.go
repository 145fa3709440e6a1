package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathRaw        = "raw"
	pathRasterize  = "rasterize"
	pathRemote     = "remote"
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultPending  = "pending"
	resultRejected = "rejected"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidedrop_publish_total",
			Help: "Publish runs by pipeline path and result.",
		},
		[]string{"path", "result"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slidedrop_publish_duration_seconds",
			Help:    "Publish run duration in seconds.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"path"},
	)

	staleCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidedrop_stale_cleanup_failures_total",
		Help: "Stale page images that could not be deleted.",
	})

	orphansDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidedrop_orphans_deleted_total",
		Help: "Unreferenced objects removed by compensation or reconciliation.",
	})
)
