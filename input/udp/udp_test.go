package udp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/record"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/performance"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Bind = "127.0.0.1"
	cfg.Port = 0
	cfg.MaxDatagramBytes = 1024
	return cfg
}

func startInput(t *testing.T, cfg Config, registry *metric.MetricsRegistry) (*Input, *performance.Reporter) {
	t.Helper()
	r, err := performance.NewReporter(performance.DefaultConfig())
	require.NoError(t, err)

	in, err := NewInput(cfg, record.NewIngester(r, nil, registry), nil, registry)
	require.NoError(t, err)
	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })
	return in, r
}

func send(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative port", func(c *Config) { c.Port = -1 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"bind not an ip", func(c *Config) { c.Bind = "localhost" }},
		{"datagram too small", func(c *Config) { c.MaxDatagramBytes = 10 }},
		{"negative socket buffer", func(c *Config) { c.SocketBufferBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestNewInput_RequiresIngester(t *testing.T) {
	_, err := NewInput(testConfig(), nil, nil, nil)
	assert.True(t, errors.IsFatal(err))
}

func TestInput_ReceivesRecords(t *testing.T) {
	in, r := startInput(t, testConfig(), nil)
	addr := in.Addr()
	require.NotNil(t, addr)

	send(t, addr, []byte(`[{"entryType":"mark","name":"a","startTime":1},{"entryType":"mark","name":"b","startTime":2}]`))
	send(t, addr, []byte(`{"entryType":"longtask","startTime":3,"duration":80}`))

	assert.Eventually(t, func() bool {
		return in.Stats().Records.Accepted == 3
	}, 2*time.Second, 10*time.Millisecond)

	marks, err := r.Entries(performance.EntryTypeMark, "")
	require.NoError(t, err)
	assert.Len(t, marks, 2)

	stats := in.Stats()
	assert.Equal(t, int64(2), stats.Packets)
	assert.False(t, stats.LastActivity.IsZero())
}

func TestInput_InvalidAndOversized(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	in, _ := startInput(t, testConfig(), registry)

	send(t, in.Addr(), []byte(`{{{`))
	big := make([]byte, 2000)
	for i := range big {
		big[i] = ' '
	}
	send(t, in.Addr(), big)

	assert.Eventually(t, func() bool {
		s := in.Stats()
		return s.Records.Invalid == 1 && s.Truncated == 1
	}, 2*time.Second, 10*time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["perfstreams_udp_packets_received_total"])
	assert.True(t, names["perfstreams_udp_packets_truncated_total"])
}

func TestInput_Lifecycle(t *testing.T) {
	r, err := performance.NewReporter(performance.DefaultConfig())
	require.NoError(t, err)
	in, err := NewInput(testConfig(), record.NewIngester(r, nil, nil), nil, nil)
	require.NoError(t, err)

	assert.Nil(t, in.Addr())
	assert.NoError(t, in.Stop(time.Second), "stop before start is a no-op")

	require.NoError(t, in.Start(context.Background()))
	require.NoError(t, in.Start(context.Background()), "start is idempotent")
	require.NoError(t, in.Stop(time.Second))
	assert.Nil(t, in.Addr())

	require.NoError(t, in.Start(context.Background()), "restart after stop")
	assert.NotNil(t, in.Addr())
	require.NoError(t, in.Stop(time.Second))
}

func TestInput_BindConflict(t *testing.T) {
	held, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer held.Close()

	cfg := testConfig()
	cfg.Port = held.LocalAddr().(*net.UDPAddr).Port

	r, err := performance.NewReporter(performance.DefaultConfig())
	require.NoError(t, err)
	in, err := NewInput(cfg, record.NewIngester(r, nil, nil), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = in.Start(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
