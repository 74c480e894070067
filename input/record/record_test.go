package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/testutil"
)

func newReporter(t *testing.T) *performance.Reporter {
	t.Helper()
	r, err := performance.NewReporter(performance.DefaultConfig())
	require.NoError(t, err)
	return r
}

func TestDecode(t *testing.T) {
	recs, err := Decode([]byte(`{"entryType":"mark","name":"a","startTime":1.5}`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].StartTime)
	assert.Equal(t, 1.5, *recs[0].StartTime)

	recs, err = Decode([]byte(" \n[{\"entryType\":\"mark\",\"name\":\"a\"},{\"entryType\":\"event\",\"name\":\"click\"}]"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Nil(t, recs[0].StartTime)

	for _, bad := range testutil.InvalidPayloads {
		_, err := Decode([]byte(bad))
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalid(err), bad)
	}
}

func TestApply(t *testing.T) {
	r := newReporter(t)
	start := 10.0

	require.NoError(t, Apply(r, Record{Type: "mark", Name: "nav", StartTime: &start}))
	require.NoError(t, Apply(r, Record{Type: "mark", Name: "now"}))
	require.NoError(t, Apply(r, Record{Type: "measure", Name: "m", StartMark: "nav", EndTime: 25}))
	require.NoError(t, Apply(r, Record{Type: "event", Name: "click", StartTime: &start, Duration: 150, InteractionID: 9}))
	require.NoError(t, Apply(r, Record{Type: "longtask", StartTime: &start, Duration: 60}))

	marks, err := r.Entries(performance.EntryTypeMark, "nav")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, 10*time.Millisecond, marks[0].StartTime)

	measures, err := r.Entries(performance.EntryTypeMeasure, "m")
	require.NoError(t, err)
	require.Len(t, measures, 1)
	assert.Equal(t, 15*time.Millisecond, measures[0].Duration)

	events, err := r.Entries(performance.EntryTypeEvent, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(9), events[0].InteractionID)
	assert.Equal(t, 150*time.Millisecond, events[0].Duration)

	tasks, err := r.Entries(performance.EntryTypeLongTask, "")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	err = Apply(r, Record{Type: "paint", Name: "fcp"})
	assert.ErrorIs(t, err, errors.ErrUnknownEntryType)

	err = Apply(r, Record{Type: "measure", Name: "m", StartMark: "missing"})
	assert.ErrorIs(t, err, errors.ErrMarkNotFound)
}

func TestApply_MarkDetailWithoutStartTime(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := clock
	r, err := performance.NewReporter(performance.DefaultConfig(),
		performance.WithClock(func() time.Time { return now }),
		performance.WithTimeOrigin(clock))
	require.NoError(t, err)
	now = clock.Add(30 * time.Millisecond)

	in := NewIngester(r, nil, nil)
	res := in.Handle(context.Background(), "test", []byte(`{"entryType":"mark","name":"m","detail":{"k":1}}`))
	assert.Equal(t, Stats{Accepted: 1}, res)

	marks, err := r.Entries(performance.EntryTypeMark, "m")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.JSONEq(t, `{"k":1}`, string(marks[0].Detail))
	assert.Equal(t, 30*time.Millisecond, marks[0].StartTime)
}

func TestIngester_Handle(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	r := newReporter(t)
	in := NewIngester(r, nil, registry)

	res := in.Handle(context.Background(), "test", []byte(`[
		{"entryType":"mark","name":"a"},
		{"entryType":"bogus","name":"b"},
		{"entryType":"event","name":"click","duration":10}
	]`))
	assert.Equal(t, Stats{Accepted: 2, Rejected: 1}, res, "short events are accepted even though they are only counted")

	assert.Equal(t, Stats{Invalid: 1}, in.Handle(context.Background(), "test", []byte(`garbage`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Stats{}, in.Handle(ctx, "test", []byte(`{"entryType":"mark","name":"late"}`)))

	assert.Equal(t, Stats{Accepted: 2, Rejected: 1, Invalid: 1}, in.Stats())
	assert.Equal(t, map[string]uint64{"click": 1}, r.EventCounts())

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	byStatus := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "perfstreams_ingest_records_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			byStatus[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ok": 2, "rejected": 1, "invalid": 1}, byStatus)
}
