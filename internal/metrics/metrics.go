// Package metrics defines the Prometheus collectors exported by the edge processor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcomes.
const (
	StatusSuccess = "success"
	StatusRetry   = "retry"
	StatusFailed  = "failed"
)

var (
	// Ingestion metrics
	ReadingsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_readings_recorded_total",
			Help: "Total number of readings recorded into the windowed store",
		},
		[]string{"transport"},
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_ingest_rejected_total",
			Help: "Total number of ingestion payloads discarded before reaching the store",
		},
		[]string{"reason"},
	)

	SensorsKnown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_sensors_known",
			Help: "Number of sensors with at least one retained reading",
		},
	)

	// Emission metrics
	SnapshotsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_snapshots_emitted_total",
			Help: "Total number of snapshots handed to the upload queue",
		},
		[]string{"kind"},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_uploads_total",
			Help: "Total number of sink write attempts by outcome",
		},
		[]string{"sink", "status"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_upload_duration_seconds",
			Help:    "Duration of a single sink write attempt",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"sink"},
	)

	UploadQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_upload_queue_depth",
			Help: "Number of snapshots waiting for upload",
		},
	)

	UploadDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_upload_dropped_total",
			Help: "Total number of snapshots dropped without being stored",
		},
		[]string{"reason"},
	)
)
