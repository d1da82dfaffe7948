// Package metrics defines the Prometheus collectors used by configsync and
// exposes an HTTP handler for scraping plus a Pushgateway push for one-shot
// runs.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Values of the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	RecordsIndexedTotal    *prometheus.CounterVec
	RecordsFailedTotal     *prometheus.CounterVec
	RegionOutcomesTotal    *prometheus.CounterVec
	PollAttempts           *prometheus.HistogramVec
	SnapshotBytes          *prometheus.HistogramVec
	IndexRequestDuration   *prometheus.HistogramVec
	IndexRequestsTotal     *prometheus.CounterVec
	TemplateInstallsTotal  *prometheus.CounterVec
	LastRunTimestampSecond prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what components use when no metrics are
// injected.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configsync_records_indexed_total",
				Help: "Inventory records written to the index engine, by region.",
			},
			[]string{"region"},
		),
		RecordsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configsync_records_failed_total",
				Help: "Inventory records that could not be indexed, by region and stage.",
			},
			[]string{"region", "stage"},
		),
		RegionOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configsync_region_outcomes_total",
				Help: "Region runs by outcome (completed, skipped_no_channel, ...).",
			},
			[]string{"region", "outcome"},
		),
		PollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "configsync_snapshot_poll_attempts",
				Help:    "Locator attempts needed before a snapshot file appeared.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
			},
			[]string{"region"},
		),
		SnapshotBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "configsync_snapshot_bytes",
				Help:    "Size of downloaded snapshot files in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"region"},
		),
		IndexRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "configsync_index_request_duration_seconds",
				Help:    "Index engine request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		IndexRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configsync_index_requests_total",
				Help: "Index engine requests by operation and status class.",
			},
			[]string{"operation", "status"},
		),
		TemplateInstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configsync_template_installs_total",
				Help: "Default index template installs by result.",
			},
			[]string{"result"},
		),
		LastRunTimestampSecond: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "configsync_last_run_timestamp_seconds",
				Help: "Unix time at which the last run finished.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
		if g, ok := reg.(prometheus.Gatherer); ok {
			m.gatherer = g
		}
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsIndexedTotal,
		m.RecordsFailedTotal,
		m.RegionOutcomesTotal,
		m.PollAttempts,
		m.SnapshotBytes,
		m.IndexRequestDuration,
		m.IndexRequestsTotal,
		m.TemplateInstallsTotal,
		m.LastRunTimestampSecond,
	}
}

// Push sends every collector to a Prometheus Pushgateway under job. Batch
// runs exit before a scrape would see them, so this is the primary export
// path for scheduled runs.
func (m *Metrics) Push(url, job string) error {
	pusher := push.New(url, job)
	for _, c := range m.collectors() {
		pusher = pusher.Collector(c)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// metrics were registered with, falling back to the default registry.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer != nil {
		return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
