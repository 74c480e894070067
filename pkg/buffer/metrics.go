package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/perfstreams/metric"
)

// bufferMetrics holds Prometheus metrics for one SyncBuffer.
type bufferMetrics struct {
	pushes   *prometheus.CounterVec
	consumed prometheus.Counter
	clears   prometheus.Counter

	size         prometheus.Gauge
	unconsumed   prometheus.Gauge
	utilization  prometheus.Gauge
	pendingDrops prometheus.Gauge
}

// newBufferMetrics creates and registers buffer metrics with the provided registry.
func newBufferMetrics(registry *metric.MetricsRegistry, component string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": component}
	m := &bufferMetrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "pushes_total",
			ConstLabels: labels,
			Help:        "Total number of buffer adds by push status",
		}, []string{"status"}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "consumed_total",
			ConstLabels: labels,
			Help:        "Total number of entries handed out by consume",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "clears_total",
			ConstLabels: labels,
			Help:        "Total number of clear operations",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of retrievable entries",
		}),
		unconsumed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "unconsumed",
			ConstLabels: labels,
			Help:        "Current number of entries not yet consumed",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Buffer utilization as a fraction of capacity (0.0 to 1.0)",
		}),
		pendingDrops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfstreams",
			Subsystem:   "buffer",
			Name:        "pending_drops",
			ConstLabels: labels,
			Help:        "Entries dropped since the last consume",
		}),
	}

	if err := registry.RegisterCounterVec(component, "buffer_pushes", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "buffer_consumed", m.consumed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "buffer_clears", m.clears); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_unconsumed", m.unconsumed); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "buffer_pending_drops", m.pendingDrops); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordPush(status PushStatus) {
	m.pushes.WithLabelValues(status.String()).Inc()
}

func (m *bufferMetrics) recordConsume(n int) {
	m.consumed.Add(float64(n))
}

func (m *bufferMetrics) recordClear() {
	m.clears.Inc()
}

// updateState sets the size-related gauges from the buffer's current state.
func (m *bufferMetrics) updateState(size, unconsumed, capacity int, pendingDrops uint64) {
	m.size.Set(float64(size))
	m.unconsumed.Set(float64(unconsumed))
	m.utilization.Set(float64(size) / float64(capacity))
	m.pendingDrops.Set(float64(pendingDrops))
}
