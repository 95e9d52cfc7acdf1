// Package metrics defines the Prometheus metric collectors used across the
// harvester and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the harvester.
type Metrics struct {
	TicksTotal            *prometheus.CounterVec
	DownloadAttemptsTotal *prometheus.CounterVec
	DocsDownloadedTotal   prometheus.Counter
	DocsIndexedTotal      prometheus.Counter
	FetchRetriesTotal     prometheus.Counter
	MergeDuration         prometheus.Histogram
	IndexTerms            prometheus.Gauge
	LedgerSize            *prometheus.GaugeVec
	StoreErrorsTotal      *prometheus.CounterVec
	EventsPublishedTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_ticks_total",
				Help: "Control-loop ticks by phase entered (indexing, downloading, idle).",
			},
			[]string{"phase"},
		),
		DownloadAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_download_attempts_total",
				Help: "Download attempts by outcome (stored, duplicate, not_found, unrecognized, transient).",
			},
			[]string{"outcome"},
		),
		DocsDownloadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_docs_downloaded_total",
				Help: "Total documents persisted to the datalake.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_docs_indexed_total",
				Help: "Total documents merged into the cumulative index.",
			},
		),
		FetchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_fetch_retries_total",
				Help: "Total transient fetch failures that triggered a retry.",
			},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_index_merge_duration_seconds",
				Help:    "Duration of cumulative index merge cycles.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_index_terms",
				Help: "Number of distinct terms in the cumulative index after the last merge.",
			},
		),
		LedgerSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_ledger_size",
				Help: "Number of identifiers recorded per ledger phase.",
			},
			[]string{"phase"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_store_errors_total",
				Help: "Non-fatal secondary store failures by backend (sqlite, redis, postgres, kafka).",
			},
			[]string{"backend"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_events_published_total",
				Help: "Pipeline events published to Kafka by type.",
			},
			[]string{"type"},
		),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.DownloadAttemptsTotal,
		m.DocsDownloadedTotal,
		m.DocsIndexedTotal,
		m.FetchRetriesTotal,
		m.MergeDuration,
		m.IndexTerms,
		m.LedgerSize,
		m.StoreErrorsTotal,
		m.EventsPublishedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
