package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConstructors(t *testing.T) {
	h := NewHealthy("nats", "connected")
	assert.True(t, h.Healthy)
	assert.True(t, h.IsHealthy())
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("reporter", "dropping")
	assert.False(t, d.Healthy)
	assert.True(t, d.IsDegraded())

	u := NewUnhealthy("sink.http", "down")
	assert.False(t, u.Healthy)
	assert.True(t, u.IsUnhealthy())
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("perfstreams", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "perfstreams", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_SortsAndCopies(t *testing.T) {
	subs := []Status{NewHealthy("zeta", ""), NewHealthy("alpha", "")}
	got := Aggregate("sys", subs)

	require.Len(t, got.SubStatuses, 2)
	assert.Equal(t, "alpha", got.SubStatuses[0].Component)
	assert.Equal(t, "zeta", subs[0].Component, "input must not be reordered")
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	original := NewHealthy("parent", "").WithSubStatus(NewHealthy("child1", ""))
	modified := original.WithSubStatus(NewUnhealthy("child2", ""))

	assert.Len(t, original.SubStatuses, 1)
	assert.Len(t, modified.SubStatuses, 2)

	original.SubStatuses[0].Status = StatusDegraded
	assert.Equal(t, StatusHealthy, modified.SubStatuses[0].Status)
}

func TestFromError(t *testing.T) {
	ok := FromError("nats", nil)
	assert.True(t, ok.IsHealthy())

	bad := FromError("nats", fmt.Errorf("dial nats://10.0.0.5:4222 failed: %w", errors.New("refused")))
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] failed: refused", bad.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"failed to open /var/lib/perfstreams/entries.jsonl", "failed to open [PATH]"},
		{"cannot read C:\\perf\\config.json", "cannot read [PATH]"},
		{"post https://collector.example.com/v1 failed", "post [URL] failed"},
		{"ws://127.0.0.1:8081/ingest closed", "[URL] closed"},
		{"connect to 192.168.1.10 refused", "connect to [IP] refused"},
		{"listen :9090 in use", "listen [PORT] in use"},
		{"auth failed password=hunter2", "auth failed [REDACTED]"},
		{"plain message", "plain message"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()
	m.Update("nats", Status{Component: "wrong", Status: StatusHealthy})

	got, ok := m.Get("nats")
	require.True(t, ok)
	assert.Equal(t, "nats", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	m.UpdateDegraded("nats", "reconnecting")
	got, _ = m.Get("nats")
	assert.True(t, got.IsDegraded())
}

func TestMonitor_Probe(t *testing.T) {
	m := NewMonitor()
	failed := false
	m.Register("sink.http", func() Status {
		if failed {
			return NewDegraded("", "deliveries failed")
		}
		return NewHealthy("", "ok")
	})

	got, ok := m.Get("sink.http")
	require.True(t, ok)
	assert.True(t, got.IsHealthy())
	assert.Equal(t, "sink.http", got.Component)

	failed = true
	assert.True(t, m.AggregateHealth("sys").IsDegraded())

	// A pushed status replaces the probe.
	m.UpdateHealthy("sink.http", "recovered")
	assert.True(t, m.AggregateHealth("sys").IsHealthy())
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_ListRemoveClear(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("reporter", "")
	m.Register("nats", func() Status { return NewHealthy("", "") })
	m.UpdateUnhealthy("sink.file", "")

	assert.Equal(t, []string{"nats", "reporter", "sink.file"}, m.ListComponents())
	assert.Len(t, m.GetAll(), 3)
	assert.True(t, m.AggregateHealth("sys").IsUnhealthy())

	m.Remove("sink.file")
	m.Remove("nats")
	assert.Equal(t, 1, m.Count())

	m.Clear()
	assert.Zero(t, m.Count())
	assert.True(t, m.AggregateHealth("sys").IsHealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i%5)
			if i%2 == 0 {
				m.UpdateHealthy(name, "")
			} else {
				m.Register(name, func() Status { return NewDegraded("", "") })
			}
		}()
		go func() {
			defer wg.Done()
			_ = m.AggregateHealth("sys")
			_ = m.ListComponents()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Count(), 5)
}

func TestHandler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("nats", "connected")
	m.UpdateDegraded("reporter", "dropping entries")

	srv := httptest.NewServer(Handler(m, "perfstreams"))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "perfstreams", got.Component)
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Len(t, got.SubStatuses, 2)

	m.UpdateUnhealthy("nats", "disconnected")
	resp2, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}
