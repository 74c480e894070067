package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by every component.
// Per-buffer metrics live with the buffers (see pkg/buffer).
type Metrics struct {
	// Reporter metrics
	EntriesRecorded *prometheus.CounterVec
	EntriesDropped  *prometheus.CounterVec
	EventsCounted   *prometheus.CounterVec
	BatchesFlushed  *prometheus.CounterVec
	FlushDuration   *prometheus.HistogramVec
	ListenerErrors  *prometheus.CounterVec

	// Ingest metrics
	RecordsIngested *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "entries",
				Name:      "recorded_total",
				Help:      "Performance entries recorded, by entry type and push status",
			},
			[]string{"entry_type", "status"},
		),

		EntriesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "entries",
				Name:      "dropped_total",
				Help:      "Performance entries evicted before they were consumed",
			},
			[]string{"entry_type"},
		),

		EventsCounted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "events",
				Name:      "counted_total",
				Help:      "Event timings reported, including those below the buffering threshold",
			},
			[]string{"buffered"},
		),

		BatchesFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "flush",
				Name:      "batches_total",
				Help:      "Batches delivered to listeners",
			},
			[]string{"entry_type"},
		),

		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "perfstreams",
				Subsystem: "flush",
				Name:      "duration_seconds",
				Help:      "Time spent delivering one flush to all listeners",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"trigger"},
		),

		ListenerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "flush",
				Name:      "listener_errors_total",
				Help:      "Listener deliveries that returned an error",
			},
			[]string{"listener", "class"},
		),

		RecordsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Records received on the ingest subject, by outcome",
			},
			[]string{"status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "perfstreams",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "perfstreams",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.EntriesRecorded,
		c.EntriesDropped,
		c.EventsCounted,
		c.BatchesFlushed,
		c.FlushDuration,
		c.ListenerErrors,
		c.RecordsIngested,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordEntry counts one recorded entry and its push status.
func (c *Metrics) RecordEntry(entryType, status string) {
	c.EntriesRecorded.WithLabelValues(entryType, status).Inc()
}

// RecordDrop counts one entry lost before it was consumed.
func (c *Metrics) RecordDrop(entryType string) {
	c.EntriesDropped.WithLabelValues(entryType).Inc()
}

// RecordEventCounted counts a reported event timing.
func (c *Metrics) RecordEventCounted(buffered bool) {
	label := "false"
	if buffered {
		label = "true"
	}
	c.EventsCounted.WithLabelValues(label).Inc()
}

// RecordBatch counts a delivered batch.
func (c *Metrics) RecordBatch(entryType string) {
	c.BatchesFlushed.WithLabelValues(entryType).Inc()
}

// RecordFlushDuration records how long one flush took.
func (c *Metrics) RecordFlushDuration(trigger string, duration time.Duration) {
	c.FlushDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordListenerError counts a failed listener delivery.
func (c *Metrics) RecordListenerError(listener, class string) {
	c.ListenerErrors.WithLabelValues(listener, class).Inc()
}

// RecordIngest counts an ingested record by outcome.
func (c *Metrics) RecordIngest(status string) {
	c.RecordsIngested.WithLabelValues(status).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
