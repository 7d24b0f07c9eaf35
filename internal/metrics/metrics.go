package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowseason_ingest_rows_read_total",
			Help: "Total CSV rows read by the importer",
		},
	)

	IngestRowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowseason_ingest_rows_rejected_total",
			Help: "Total CSV rows dropped or values nulled at import",
		},
		[]string{"reason"},
	)

	ObservationsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snowseason_observations_loaded",
			Help: "Daily observations loaded by the last pipeline run",
		},
	)

	SeasonsBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowseason_seasons_built_total",
			Help: "Total season records built",
		},
	)

	MarkersMissing = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowseason_markers_missing_total",
			Help: "Season fields left null for lack of data",
		},
		[]string{"group"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowseason_pipeline_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowseason_uploads_total",
			Help: "Total files uploaded to the publish server",
		},
		[]string{"status"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// format, for batch commands that exit before anything could scrape them.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
