// Package metrics defines Prometheus metrics for import runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loader_rows_total",
			Help: "Source rows processed, by outcome",
		},
		[]string{"outcome"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loader_records_total",
			Help: "Entities written by entity mappings, by entity type and outcome",
		},
		[]string{"entity", "outcome"},
	)

	AssociationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loader_associations_total",
			Help: "Association changes made by pivot syncs, by relation and change",
		},
		[]string{"relation", "change"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loader_errors_total",
			Help: "Row errors by classification",
		},
		[]string{"kind"},
	)

	TruncationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_loader_truncations_total",
			Help: "Values cut to their maximum length, by entity type",
		},
		[]string{"entity"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entity_loader_run_duration_seconds",
			Help:    "Import run duration in seconds, by final status",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RowsTotal, RecordsTotal, AssociationsTotal,
		ErrorsTotal, TruncationsTotal, RunDuration,
	)
}

// WriteTextfile writes the current values of the default registry in the
// text exposition format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
