package buffer

import (
	"sync"
	"sync/atomic"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
)

func TestNewSyncBufferNilStore(t *testing.T) {
	buf, err := NewSyncBuffer[int](nil)
	require.Error(t, err)
	assert.Nil(t, buf)
	assert.True(t, errors.IsInvalid(err))
}

func TestSyncBufferReadyCallbackIsEdgeTriggered(t *testing.T) {
	var ready int32
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](4),
		WithReadyCallback[int](func() { atomic.AddInt32(&ready, 1) }),
	)
	require.NoError(t, err)

	buf.Add(1)
	buf.Add(2)
	buf.Add(3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ready), "only the 0 -> 1 transition fires")

	buf.Consume()
	buf.Add(4)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ready))

	buf.Clear()
	buf.Add(5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ready))
}

func TestSyncBufferReadyCallbackMayReenter(t *testing.T) {
	var buf *SyncBuffer[int]
	var drained []int

	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](4),
		WithReadyCallback[int](func() { drained = append(drained, buf.Consume()...) }),
	)
	require.NoError(t, err)

	buf.Add(1)
	buf.Add(2)

	assert.Equal(t, []int{1, 2}, drained)
	assert.Equal(t, 0, buf.NumToConsume())
}

func TestSyncBufferDropAccounting(t *testing.T) {
	var victims []int
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](2),
		WithDropCallback(func(item int) { victims = append(victims, item) }),
	)
	require.NoError(t, err)

	assert.Equal(t, PushOK, buf.Add(1))
	assert.Equal(t, PushOK, buf.Add(2))
	assert.Equal(t, PushDrop, buf.Add(3))
	assert.Equal(t, PushDrop, buf.Add(4))
	assert.Equal(t, []int{1, 2}, victims)
	assert.Equal(t, uint64(2), buf.PendingDrops())

	items, dropped := buf.ConsumeBatch()
	assert.Equal(t, []int{3, 4}, items)
	assert.Equal(t, uint64(2), dropped)
	assert.Equal(t, uint64(0), buf.PendingDrops())

	assert.Equal(t, PushOverwrite, buf.Add(5))
	items, dropped = buf.ConsumeBatch()
	assert.Equal(t, []int{5}, items)
	assert.Equal(t, uint64(0), dropped)
	assert.Equal(t, []int{1, 2}, victims, "overwrites are not reported as drops")

	stats := buf.Stats()
	assert.Equal(t, int64(5), stats.Adds())
	assert.Equal(t, int64(2), stats.Drops())
	assert.Equal(t, int64(1), stats.Overwrites())
	assert.Equal(t, int64(2), stats.Consumes())
	assert.Equal(t, int64(3), stats.ConsumedItems())
	assert.Equal(t, int64(2), stats.MaxSize())
	assert.InDelta(t, 0.4, stats.DropRate(), 1e-9)
}

func TestSyncBufferLookup(t *testing.T) {
	keyed, err := NewSyncBuffer[namedValue](NewKeyedBuffer(3, byName))
	require.NoError(t, err)

	keyed.Add(namedValue{"a", 1})
	keyed.Add(namedValue{"a", 2})

	got, ok := keyed.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 2, got.value)

	_, ok = keyed.Lookup("b")
	assert.False(t, ok)

	plain, err := NewSyncBuffer[namedValue](NewConsumableBuffer[namedValue](3))
	require.NoError(t, err)
	plain.Add(namedValue{"a", 1})
	_, ok = plain.Lookup("a")
	assert.False(t, ok, "unindexed stores never match")
}

func TestSyncBufferClearFunc(t *testing.T) {
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](5))
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	removed := buf.ClearFunc(func(v int) bool { return v > 3 })

	assert.Equal(t, 2, removed)
	assert.Equal(t, []int{1, 2, 3}, buf.Entries())
	assert.Equal(t, []int{2}, buf.EntriesFunc(func(v int) bool { return v == 2 }))
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 5, buf.Cap())
	assert.Equal(t, int64(1), buf.Stats().Clears())
	assert.Equal(t, int64(3), buf.Stats().CurrentSize())
}

func TestSyncBufferMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](2),
		WithMetrics[int](registry, "marks"),
	)
	require.NoError(t, err)

	buf.Add(1)
	buf.Add(2)
	buf.Add(3)
	buf.Consume()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(families, "perfstreams_buffer_pushes_total", "status", "ok"))
	assert.Equal(t, 1.0, counterValue(families, "perfstreams_buffer_pushes_total", "status", "drop"))
	assert.Equal(t, 2.0, counterValue(families, "perfstreams_buffer_consumed_total", "", ""))
	assert.Equal(t, 2.0, gaugeValue(families, "perfstreams_buffer_size"))
	assert.Equal(t, 0.0, gaugeValue(families, "perfstreams_buffer_unconsumed"))
	assert.Equal(t, 1.0, gaugeValue(families, "perfstreams_buffer_utilization"))
}

func TestSyncBufferDuplicateMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	_, err := NewSyncBuffer[int](NewConsumableBuffer[int](2), WithMetrics[int](registry, "events"))
	require.NoError(t, err)

	_, err = NewSyncBuffer[int](NewConsumableBuffer[int](2), WithMetrics[int](registry, "events"))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestSyncBufferMetricsIgnoredWithoutRegistry(t *testing.T) {
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](2), WithMetrics[int](nil, "x"))
	require.NoError(t, err)
	assert.Nil(t, buf.metrics)
}

func TestSyncBufferConcurrentProducers(t *testing.T) {
	buf, err := NewSyncBuffer[int](NewConsumableBuffer[int](64))
	require.NoError(t, err)

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	var consumed, dropped int64
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			items, d := buf.ConsumeBatch()
			atomic.AddInt64(&consumed, int64(len(items)))
			atomic.AddInt64(&dropped, int64(d))
			if atomic.LoadInt64(&consumed)+atomic.LoadInt64(&dropped) == producers*perProducer {
				return
			}
		}
	}()

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				buf.Add(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()
	<-done

	// Pick up anything added after the consumer's last pass.
	items, d := buf.ConsumeBatch()
	consumed += int64(len(items))
	dropped += int64(d)

	assert.Equal(t, int64(producers*perProducer), consumed+dropped,
		"every entry is consumed once or dropped once")
	assert.Equal(t, int64(producers*perProducer), buf.Stats().Adds())
	assert.LessOrEqual(t, buf.Len(), 64)
}

func counterValue(families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelName == "" || hasLabel(m, labelName, labelValue) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func gaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
