package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempshare_uploads_total",
		Help: "Files stored successfully.",
	})

	uploadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempshare_upload_failures_total",
		Help: "Uploads that were rejected or aborted, by reason.",
	}, []string{"reason"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempshare_deletes_total",
		Help: "Files removed by explicit delete.",
	})

	sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempshare_swept_files_total",
		Help: "Files removed by the expiry sweep.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tempshare_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	contentErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempshare_content_errors_total",
		Help: "Content store inconsistencies and failed removals.",
	}, []string{"kind"})

	storedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempshare_stored_files",
		Help: "Files in the last committed metadata collection.",
	})
)
