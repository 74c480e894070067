package performance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
)

func TestParseEntryType(t *testing.T) {
	tests := []struct {
		in   string
		want EntryType
	}{
		{"mark", EntryTypeMark},
		{"Measure", EntryTypeMeasure},
		{" event ", EntryTypeEvent},
		{"longtask", EntryTypeLongTask},
		{"long-task", EntryTypeLongTask},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntryType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseEntryType("paint")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownEntryType)
	assert.True(t, errors.IsInvalid(err))
}

func TestEntryType_String(t *testing.T) {
	for _, et := range EntryTypes() {
		parsed, err := ParseEntryType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}
	assert.Equal(t, "unknown", EntryType(42).String())
	assert.False(t, EntryType(42).Valid())

	_, err := EntryType(42).MarshalText()
	assert.Error(t, err)
}

func TestEntry_JSONUsesMilliseconds(t *testing.T) {
	e := Entry{
		Name:            "click",
		Type:            EntryTypeEvent,
		StartTime:       1500 * time.Microsecond,
		Duration:        120 * time.Millisecond,
		ProcessingStart: 2 * time.Millisecond,
		ProcessingEnd:   100 * time.Millisecond,
		InteractionID:   7,
		Detail:          json.RawMessage(`{"target":"button"}`),
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "click",
		"entryType": "event",
		"startTime": 1.5,
		"duration": 120,
		"processingStart": 2,
		"processingEnd": 100,
		"interactionId": 7,
		"detail": {"target": "button"}
	}`, string(b))

	var back Entry
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, e.StartTime, back.StartTime)
	assert.Equal(t, e.Duration, back.Duration)
	assert.Equal(t, e.Type, back.Type)
	assert.Equal(t, 121500*time.Microsecond, back.EndTime())
}

func TestEntry_JSONOmitsEventFieldsForMarks(t *testing.T) {
	b, err := json.Marshal(Entry{Name: "render", Type: EntryTypeMark, StartTime: time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"render","entryType":"mark","startTime":1,"duration":0}`, string(b))
}

func TestNewBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	a := NewBatch(EntryTypeMark, []Entry{{Name: "a"}}, 2, now)
	b := NewBatch(EntryTypeMark, nil, 0, now)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, uint64(2), a.Dropped)
	assert.Equal(t, time.UTC, a.FlushedAt.Location())
	assert.True(t, a.FlushedAt.Equal(now))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero mark buffer", func(c *Config) { c.MarkBufferSize = 0 }},
		{"negative event buffer", func(c *Config) { c.EventBufferSize = -1 }},
		{"negative threshold", func(c *Config) { c.LongTaskThreshold = -time.Millisecond }},
		{"no workers", func(c *Config) { c.FlushWorkers = 0 }},
		{"negative interval", func(c *Config) { c.FlushInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}
