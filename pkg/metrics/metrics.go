// Package metrics defines the Prometheus collectors for a word index run and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexer.
type Metrics struct {
	RecordsProduced    *prometheus.CounterVec
	RecordsConsumed    *prometheus.CounterVec
	SentinelsSent      prometheus.Counter
	SourcesUnavailable prometheus.Counter
	QueueDepth         *prometheus.GaugeVec
	ActiveProducers    prometheus.Gauge
	IndexKeys          prometheus.Gauge
	IndexOccurrences   prometheus.Gauge
	RunDuration        prometheus.Histogram
	EntriesPublished   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RecordsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordindex_records_produced_total",
				Help: "Records routed into shard queues, by destination shard.",
			},
			[]string{"shard"},
		),
		RecordsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordindex_records_consumed_total",
				Help: "Records merged into the shared index, by shard.",
			},
			[]string{"shard"},
		),
		SentinelsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordindex_sentinels_sent_total",
				Help: "Termination sentinels broadcast to shard queues.",
			},
		),
		SourcesUnavailable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordindex_sources_unavailable_total",
				Help: "Sources that could not be opened and were skipped.",
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wordindex_queue_depth",
				Help: "Last observed number of messages in each shard queue.",
			},
			[]string{"shard"},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordindex_active_producers",
				Help: "Producers that have not yet completed.",
			},
		),
		IndexKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordindex_index_keys",
				Help: "Distinct keys in the shared index.",
			},
		),
		IndexOccurrences: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordindex_index_occurrences",
				Help: "Total occurrences recorded in the shared index.",
			},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wordindex_run_duration_seconds",
				Help:    "Wall-clock duration of a full produce/consume run.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		EntriesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordindex_entries_published_total",
				Help: "Index entries written to sinks, by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}

	reg.MustRegister(
		m.RecordsProduced,
		m.RecordsConsumed,
		m.SentinelsSent,
		m.SourcesUnavailable,
		m.QueueDepth,
		m.ActiveProducers,
		m.IndexKeys,
		m.IndexOccurrences,
		m.RunDuration,
		m.EntriesPublished,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps every metric in g to path in the text exposition
// format, for collection by a node exporter after the process exits.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
