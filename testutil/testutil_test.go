package testutil

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"perf.ingest", "perf.ingest", true},
		{"perf.ingest", "perf.ingest.web", false},
		{"perf.*", "perf.ingest", true},
		{"perf.*", "perf.ingest.web", false},
		{"perf.>", "perf.ingest.web", true},
		{"perf.>", "perf", false},
		{"perf.*.web", "perf.ingest.web", true},
		{"perf.*.web", "perf.ingest.app", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubjectMatches(tt.pattern, tt.subject), "%s ~ %s", tt.pattern, tt.subject)
	}
}

func TestMockNATSClient(t *testing.T) {
	nc := NewMockNATSClient()

	var got []string
	require.NoError(t, nc.Subscribe(context.Background(), "perf.>", func(_ context.Context, subject string, _ []byte) {
		got = append(got, subject)
	}))

	require.NoError(t, nc.Publish("perf.entries.mark", []byte("a")))
	require.NoError(t, nc.Publish("other", []byte("b")))
	assert.Equal(t, []string{"perf.entries.mark"}, got)
	assert.Equal(t, []string{"perf.entries.mark", "other"}, nc.Subjects())
	assert.Len(t, nc.Messages("other"), 1)

	boom := stderrors.New("boom")
	nc.FailNext(1, boom)
	assert.ErrorIs(t, nc.Publish("perf.x", nil), boom)
	assert.Zero(t, nc.RemainingFailures())
	assert.Len(t, nc.WaitForMessages(t, "", 2, time.Second), 2)

	require.NoError(t, nc.Unsubscribe("perf.>"))
	assert.Zero(t, nc.Subscriptions())
	require.NoError(t, nc.Publish("perf.entries.measure", nil))
	assert.Equal(t, []string{"perf.entries.mark"}, got)

	nc.Close()
	assert.Error(t, nc.Publish("perf.x", nil))
}

func TestRecordHelpers(t *testing.T) {
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(RecordArray(MarkRecord, EventRecord), &recs))
	assert.Len(t, recs, 2)

	marks := Marks("frame", 3)
	require.Len(t, marks, 3)
	assert.JSONEq(t, `{"entryType":"mark","name":"frame-2","startTime":2}`, marks[2])
}
