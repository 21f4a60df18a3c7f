// Package metrics exposes session and feed counters as Prometheus metrics.
// The collector snapshots the registry at scrape time and emits const
// metrics, so sessions carry no instrumentation of their own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serialscope/serialscope/internal/domain"
)

// StatsSource supplies per-port counter snapshots. *monitor.Registry
// satisfies it.
type StatsSource interface {
	AllStats() map[string]domain.Stats
}

// FeedSource supplies feed buffer and subscriber counts. *feed.Manager
// satisfies it.
type FeedSource interface {
	Stats() domain.FeedStats
}

// Collector implements prometheus.Collector over a StatsSource and an
// optional FeedSource.
type Collector struct {
	registry StatsSource
	feed     FeedSource

	portsActive      *prometheus.Desc
	receivedBytes    *prometheus.Desc
	lines            *prometheus.Desc
	matchedLines     *prometheus.Desc
	droppedCallbacks *prometheus.Desc
	dumpedBytes      *prometheus.Desc
	dumpActive       *prometheus.Desc
	feedBuffered     *prometheus.Desc
	feedSubscribers  *prometheus.Desc
}

// NewCollector returns a Collector reading from registry and feed. feed may
// be nil when no feed manager is running.
func NewCollector(registry StatsSource, feed FeedSource) *Collector {
	portLabel := []string{"port"}
	return &Collector{
		registry: registry,
		feed:     feed,
		portsActive: prometheus.NewDesc(
			"serialscope_ports_active",
			"Number of registered port sessions.",
			nil, nil),
		receivedBytes: prometheus.NewDesc(
			"serialscope_port_received_bytes_total",
			"Raw bytes read from the port.",
			portLabel, nil),
		lines: prometheus.NewDesc(
			"serialscope_port_lines_total",
			"Complete lines framed from the port.",
			portLabel, nil),
		matchedLines: prometheus.NewDesc(
			"serialscope_port_matched_lines_total",
			"Lines that passed the session filter.",
			portLabel, nil),
		droppedCallbacks: prometheus.NewDesc(
			"serialscope_port_dropped_callbacks_total",
			"Callback deliveries dropped under backpressure.",
			portLabel, nil),
		dumpedBytes: prometheus.NewDesc(
			"serialscope_port_dumped_bytes_total",
			"Binary dump payload bytes written.",
			portLabel, nil),
		dumpActive: prometheus.NewDesc(
			"serialscope_port_dump_active",
			"Whether a dump sink is open (1) or closed (0).",
			portLabel, nil),
		feedBuffered: prometheus.NewDesc(
			"serialscope_feed_buffered_events",
			"Line events currently held in the feed ring buffer.",
			nil, nil),
		feedSubscribers: prometheus.NewDesc(
			"serialscope_feed_subscribers",
			"Live feed subscriptions.",
			nil, nil),
	}
}

// Describe sends the metric descriptions.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.portsActive
	ch <- c.receivedBytes
	ch <- c.lines
	ch <- c.matchedLines
	ch <- c.droppedCallbacks
	ch <- c.dumpedBytes
	ch <- c.dumpActive
	ch <- c.feedBuffered
	ch <- c.feedSubscribers
}

// Collect snapshots the sources and emits one const metric per counter.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.registry.AllStats()
	ch <- prometheus.MustNewConstMetric(c.portsActive, prometheus.GaugeValue, float64(len(stats)))

	for port, st := range stats {
		ch <- prometheus.MustNewConstMetric(c.receivedBytes, prometheus.CounterValue, float64(st.TotalBytes), port)
		ch <- prometheus.MustNewConstMetric(c.lines, prometheus.CounterValue, float64(st.Lines), port)
		ch <- prometheus.MustNewConstMetric(c.matchedLines, prometheus.CounterValue, float64(st.MatchedLines), port)
		ch <- prometheus.MustNewConstMetric(c.droppedCallbacks, prometheus.CounterValue, float64(st.DroppedCallbacks), port)
		ch <- prometheus.MustNewConstMetric(c.dumpedBytes, prometheus.CounterValue, float64(st.DumpedBytes), port)

		active := 0.0
		if st.DumpActive {
			active = 1
		}
		ch <- prometheus.MustNewConstMetric(c.dumpActive, prometheus.GaugeValue, active, port)
	}

	if c.feed != nil {
		fs := c.feed.Stats()
		ch <- prometheus.MustNewConstMetric(c.feedBuffered, prometheus.GaugeValue, float64(fs.TotalEvents))
		ch <- prometheus.MustNewConstMetric(c.feedSubscribers, prometheus.GaugeValue, float64(fs.Subscribers))
	}
}

// Handler registers the collector on a fresh registry and returns the
// scrape handler for it.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
