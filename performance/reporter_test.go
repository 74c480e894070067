package performance

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type collector struct {
	mu      sync.Mutex
	batches []Batch
}

func (c *collector) OnBatch(_ context.Context, b Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
	return nil
}

func (c *collector) Name() string { return "collector" }

func (c *collector) snapshot() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Batch(nil), c.batches...)
}

func (c *collector) entries(t EntryType) []Entry {
	var out []Entry
	for _, b := range c.snapshot() {
		if b.Type == t {
			out = append(out, b.Entries...)
		}
	}
	return out
}

func newTestReporter(t *testing.T, cfg Config, opts ...ReporterOption) (*Reporter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]ReporterOption{WithClock(clock.Now)}, opts...)
	r, err := NewReporter(cfg, opts...)
	require.NoError(t, err)
	return r, clock
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestNewReporter_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventBufferSize = 0
	_, err := NewReporter(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestReporter_MarkAndMeasure(t *testing.T) {
	r, clock := newTestReporter(t, DefaultConfig())

	clock.Advance(10 * time.Millisecond)
	a, err := r.Mark("fetch-start")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, a.StartTime)
	assert.Equal(t, EntryTypeMark, a.Type)

	clock.Advance(20 * time.Millisecond)
	_, err = r.Mark("fetch-end")
	require.NoError(t, err)

	m, err := r.Measure("fetch", MeasureOptions{StartMark: "fetch-start", EndMark: "fetch-end"})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, m.StartTime)
	assert.Equal(t, 20*time.Millisecond, m.Duration)

	// A later mark with the same name wins.
	clock.Advance(5 * time.Millisecond)
	_, err = r.Mark("fetch-start")
	require.NoError(t, err)
	m, err = r.Measure("fetch-again", MeasureOptions{StartMark: "fetch-start"})
	require.NoError(t, err)
	assert.Equal(t, 35*time.Millisecond, m.StartTime)
	assert.Equal(t, time.Duration(0), m.Duration, "end defaults to now")
}

func TestReporter_MeasureOptions(t *testing.T) {
	r, clock := newTestReporter(t, DefaultConfig())
	clock.Advance(100 * time.Millisecond)

	tests := []struct {
		name      string
		opts      MeasureOptions
		wantStart time.Duration
		wantDur   time.Duration
	}{
		{"defaults to origin until now", MeasureOptions{}, 0, 100 * time.Millisecond},
		{"explicit start", MeasureOptions{Start: 40 * time.Millisecond}, 40 * time.Millisecond, 60 * time.Millisecond},
		{"explicit end", MeasureOptions{Start: 10 * time.Millisecond, End: 15 * time.Millisecond}, 10 * time.Millisecond, 5 * time.Millisecond},
		{"duration", MeasureOptions{Start: 10 * time.Millisecond, Duration: 7 * time.Millisecond}, 10 * time.Millisecond, 7 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Measure("m", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, m.StartTime)
			assert.Equal(t, tt.wantDur, m.Duration)
		})
	}
}

func TestReporter_MeasureErrors(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	_, err := r.Measure("m", MeasureOptions{StartMark: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMarkNotFound)
	assert.True(t, errors.IsInvalid(err))

	_, err = r.Measure("m", MeasureOptions{Start: 20 * time.Millisecond, End: 10 * time.Millisecond})
	assert.ErrorIs(t, err, errors.ErrInvalidTiming)

	_, err = r.Measure("", MeasureOptions{})
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	_, err = r.Mark("")
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	_, err = r.MarkAt("neg", -time.Millisecond, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidTiming)

	entries, err := r.Entries(EntryTypeMeasure, "")
	require.NoError(t, err)
	assert.Empty(t, entries, "failed measures record nothing")
}

func TestReporter_ReportEventThreshold(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	buffered, err := r.ReportEvent(EventTiming{Name: "click", Duration: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, buffered)

	buffered, err = r.ReportEvent(EventTiming{Name: "click", Duration: 104 * time.Millisecond, InteractionID: 3})
	require.NoError(t, err)
	assert.True(t, buffered)

	buffered, err = r.ReportEvent(EventTiming{Name: "keydown", Duration: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, buffered)

	assert.Equal(t, map[string]uint64{"click": 2, "keydown": 1}, r.EventCounts())

	events, err := r.Entries(EntryTypeEvent, "click")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(3), events[0].InteractionID)

	_, err = r.ReportEvent(EventTiming{})
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestReporter_ReportLongTaskThreshold(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	buffered, err := r.ReportLongTask(0, 49*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, buffered)

	buffered, err = r.ReportLongTask(5*time.Millisecond, 80*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, buffered)

	tasks, err := r.Entries(EntryTypeLongTask, "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, longTaskName, tasks[0].Name)

	_, err = r.ReportLongTask(0, -time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrInvalidTiming)
}

func TestReporter_EntriesAndClear(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	_, err := r.MarkAt("b", 30*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = r.MarkAt("a", 10*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = r.MarkAt("b", 50*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = r.ReportLongTask(20*time.Millisecond, time.Second)
	require.NoError(t, err)

	bs, err := r.Entries(EntryTypeMark, "b")
	require.NoError(t, err)
	assert.Len(t, bs, 2)

	all := r.AllEntries()
	assert.Equal(t, []string{"a", longTaskName, "b", "b"}, names(all))

	removed, err := r.ClearEntries(EntryTypeMark, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	marks, err := r.Entries(EntryTypeMark, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(marks))

	_, err = r.Measure("from-b", MeasureOptions{StartMark: "b"})
	assert.ErrorIs(t, err, errors.ErrMarkNotFound, "cleared marks leave the index")

	removed, err = r.ClearEntries(EntryTypeLongTask, "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = r.Entries(EntryType(9), "")
	assert.ErrorIs(t, err, errors.ErrUnknownEntryType)
	_, err = r.ClearEntries(EntryType(9), "")
	assert.ErrorIs(t, err, errors.ErrUnknownEntryType)
}

func TestReporter_FlushDeliversNewEntriesOnce(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	all := &collector{}
	events := &collector{}
	_, err := r.Subscribe(all)
	require.NoError(t, err)
	_, err = r.Subscribe(events, EntryTypeEvent)
	require.NoError(t, err)

	_, err = r.Mark("m1")
	require.NoError(t, err)
	_, err = r.ReportEvent(EventTiming{Name: "click", Duration: time.Second})
	require.NoError(t, err)

	require.NoError(t, r.Flush(context.Background()))
	assert.Len(t, all.snapshot(), 2)
	require.Len(t, events.snapshot(), 1)
	assert.Equal(t, EntryTypeEvent, events.snapshot()[0].Type)

	// Nothing new, nothing delivered; history is still retrievable.
	require.NoError(t, r.Flush(context.Background()))
	assert.Len(t, all.snapshot(), 2)
	marks, err := r.Entries(EntryTypeMark, "")
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func TestReporter_FlushReportsDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MarkBufferSize = 2
	registry := metric.NewMetricsRegistry()
	r, _ := newTestReporter(t, cfg, WithMetricsRegistry(registry))

	c := &collector{}
	_, err := r.Subscribe(c, EntryTypeMark)
	require.NoError(t, err)

	for _, n := range []string{"one", "two", "three"} {
		_, err := r.Mark(n)
		require.NoError(t, err)
	}
	require.NoError(t, r.Flush(context.Background()))

	batches := c.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(1), batches[0].Dropped)
	assert.Equal(t, []string{"two", "three"}, names(batches[0].Entries))

	// The dropped mark no longer resolves.
	_, err = r.Measure("x", MeasureOptions{StartMark: "one"})
	assert.ErrorIs(t, err, errors.ErrMarkNotFound)

	assert.Equal(t, 1.0, counterValue(t, registry, "perfstreams_entries_dropped_total", "entry_type", "mark"))
	assert.Equal(t, 1.0, counterValue(t, registry, "perfstreams_entries_recorded_total", "status", "drop"))
	assert.Equal(t, 2.0, counterValue(t, registry, "perfstreams_entries_recorded_total", "status", "ok"))
	assert.Equal(t, int64(1), r.BufferStats()[EntryTypeMark].Drops)
}

func TestReporter_ListenerErrorDoesNotStopDelivery(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	boom := stderrors.New("sink offline")
	_, err := r.Subscribe(ListenerFunc(func(context.Context, Batch) error { return boom }))
	require.NoError(t, err)
	c := &collector{}
	_, err = r.Subscribe(c)
	require.NoError(t, err)

	_, err = r.Mark("m")
	require.NoError(t, err)

	err = r.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, c.snapshot(), 1)
}

func TestReporter_Unsubscribe(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())
	c := &collector{}
	unsubscribe, err := r.Subscribe(c)
	require.NoError(t, err)
	unsubscribe()

	_, err = r.Mark("m")
	require.NoError(t, err)
	require.NoError(t, r.Flush(context.Background()))
	assert.Empty(t, c.snapshot())

	_, err = r.Subscribe(nil)
	assert.Error(t, err)
	_, err = r.Subscribe(c, EntryType(12))
	assert.ErrorIs(t, err, errors.ErrUnknownEntryType)
}

func TestReporter_BackgroundFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	r, _ := newTestReporter(t, cfg)

	c := &collector{}
	_, err := r.Subscribe(c)
	require.NoError(t, err)

	// Recorded before Start: flushed once Start runs.
	_, err = r.Mark("early")
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return len(c.entries(EntryTypeMark)) == 1 },
		2*time.Second, 5*time.Millisecond)

	// The readiness edge schedules the next flush.
	_, err = r.Mark("late")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.entries(EntryTypeMark)) == 2 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop(time.Second))
	assert.Equal(t, []string{"early", "late"}, names(c.entries(EntryTypeMark)))
}

func TestReporter_FlushAfterQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushWorkers = 1
	cfg.FlushQueueSize = 1
	cfg.FlushInterval = 0
	r, _ := newTestReporter(t, cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := &collector{}
	_, err := r.Subscribe(ListenerFunc(func(ctx context.Context, b Batch) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return c.OnBatch(ctx, b)
	}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	// the only worker blocks on the mark batch
	_, err = r.Mark("busy")
	require.NoError(t, err)
	<-entered

	// the event flush fills the queue; the long task flush is rejected
	_, err = r.ReportEvent(EventTiming{Name: "click", Duration: 200 * time.Millisecond})
	require.NoError(t, err)
	_, err = r.ReportLongTask(0, time.Second)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool { return len(c.entries(EntryTypeLongTask)) == 1 },
		2*time.Second, 5*time.Millisecond)

	// the buffer went back to empty, so the next edge fires normally
	_, err = r.ReportLongTask(time.Second, time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.entries(EntryTypeLongTask)) == 2 },
		2*time.Second, 5*time.Millisecond)

	assert.Len(t, c.entries(EntryTypeEvent), 1)
	assert.Equal(t, 0, r.buffers[EntryTypeLongTask].NumToConsume())
	require.NoError(t, r.Stop(time.Second))
}

func TestReporter_StopFlushesRemainder(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())
	c := &collector{}
	_, err := r.Subscribe(c)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	for i := 0; i < 20; i++ {
		_, err := r.ReportLongTask(time.Duration(i)*time.Millisecond, time.Second)
		require.NoError(t, err)
	}
	require.NoError(t, r.Stop(time.Second))

	assert.Len(t, c.entries(EntryTypeLongTask), 20)
	assert.Equal(t, 0, r.buffers[EntryTypeLongTask].NumToConsume())
}

func TestReporter_Lifecycle(t *testing.T) {
	r, _ := newTestReporter(t, DefaultConfig())

	assert.NoError(t, r.Stop(time.Second), "stop before start is a no-op")

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), errors.ErrAlreadyStarted)
	require.NoError(t, r.Stop(time.Second))
	assert.NoError(t, r.Stop(time.Second))
	assert.ErrorIs(t, r.Start(context.Background()), errors.ErrAlreadyStopped)
}

func TestReporter_ConcurrentRecording(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LongTaskBufferSize = 16
	r, _ := newTestReporter(t, cfg)

	var (
		mu      sync.Mutex
		got     int
		dropped uint64
	)
	_, err := r.Subscribe(ListenerFunc(func(_ context.Context, b Batch) error {
		mu.Lock()
		got += len(b.Entries)
		dropped += b.Dropped
		mu.Unlock()
		return nil
	}), EntryTypeLongTask)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	const producers, perProducer = 4, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, _ = r.ReportLongTask(time.Millisecond, time.Second)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, r.Stop(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(producers*perProducer), uint64(got)+dropped,
		"every entry is either delivered or reported as dropped")
}

func counterValue(t *testing.T, registry *metric.MetricsRegistry, name, label, value string) float64 {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, label, value) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
