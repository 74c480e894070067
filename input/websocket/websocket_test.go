package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/record"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/testutil"
)

func newInput(t *testing.T, cfg Config, registry *metric.MetricsRegistry) (*Input, *performance.Reporter) {
	t.Helper()
	r, err := performance.NewReporter(performance.DefaultConfig())
	require.NoError(t, err)
	in, err := NewInput(cfg, record.NewIngester(r, nil, registry), nil, registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Stop(time.Second) })
	return in, r
}

func serve(t *testing.T, in *Input) string {
	t.Helper()
	srv := httptest.NewServer(in.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + in.cfg.Path
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, payload string) Ack {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack Ack
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"relative path", func(c *Config) { c.Path = "ingest" }},
		{"no connections", func(c *Config) { c.MaxConnections = 0 }},
		{"no read limit", func(c *Config) { c.ReadLimitBytes = 0 }},
		{"bearer without env", func(c *Config) { c.Auth = AuthConfig{Type: "bearer"} }},
		{"basic without env", func(c *Config) { c.Auth = AuthConfig{Type: "basic", BasicUsernameEnv: "U"} }},
		{"unknown auth", func(c *Config) { c.Auth = AuthConfig{Type: "oauth"} }},
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

func TestInput_IngestAndAck(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	in, r := newInput(t, DefaultConfig(), registry)
	conn := dial(t, serve(t, in), nil)

	ack := roundTrip(t, conn, `[{"entryType":"mark","name":"boot","startTime":0},{"entryType":"mark","name":"ready","startTime":40}]`)
	assert.Equal(t, Ack{Type: "ack", Accepted: 2}, ack)

	ack = roundTrip(t, conn, `{"entryType":"measure","name":"startup","startMark":"boot","endMark":"ready"}`)
	assert.Equal(t, Ack{Type: "ack", Accepted: 1}, ack)

	ack = roundTrip(t, conn, `[{"entryType":"mark","name":"paint","startTime":50},{"entryType":"measure","name":"x","startMark":"missing"}]`)
	assert.Equal(t, Ack{Type: "ack", Accepted: 1, Rejected: 1}, ack)

	ack = roundTrip(t, conn, `nope`)
	assert.Equal(t, Ack{Type: "ack", Invalid: 1}, ack, "bad payloads are acknowledged and the connection stays open")

	measures, err := r.Entries(performance.EntryTypeMeasure, "startup")
	require.NoError(t, err)
	require.Len(t, measures, 1)
	assert.Equal(t, 40*time.Millisecond, measures[0].Duration)

	stats := in.Stats()
	assert.Equal(t, int64(4), stats.Messages)
	assert.Equal(t, 1, stats.ConnectionsActive)
	assert.Equal(t, record.Stats{Accepted: 4, Rejected: 1, Invalid: 1}, stats.Records)
}

func TestInput_BearerAuth(t *testing.T) {
	t.Setenv("PERF_WS_TOKEN", "s3cret")
	cfg := DefaultConfig()
	cfg.Auth = AuthConfig{Type: "bearer", BearerTokenEnv: "PERF_WS_TOKEN"}
	in, _ := newInput(t, cfg, nil)
	url := serve(t, in)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer wrong"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	conn := dial(t, url, http.Header{"Authorization": {"Bearer s3cret"}})
	ack := roundTrip(t, conn, `{"entryType":"mark","name":"x","startTime":1}`)
	assert.Equal(t, int64(1), ack.Accepted)
}

func TestInput_ConnectionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	in, _ := newInput(t, cfg, nil)
	url := serve(t, in)

	dial(t, url, nil)
	require.Eventually(t, func() bool { return in.Stats().ConnectionsActive == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestInput_ConnectionLimitConcurrentHandshakes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 2
	in, _ := newInput(t, cfg, nil)
	url := serve(t, in)

	const dialers = 12
	var (
		mu    sync.Mutex
		conns []*websocket.Conn
		wg    sync.WaitGroup
	)
	for range dialers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, c := range conns {
		defer c.Close()
	}

	assert.LessOrEqual(t, len(conns), cfg.MaxConnections)
	assert.LessOrEqual(t, in.Stats().ConnectionsActive, cfg.MaxConnections)
}

func TestInput_FailedUpgradeReleasesSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	in, _ := newInput(t, cfg, nil)
	url := serve(t, in)

	// a plain GET fails the handshake after the slot was reserved
	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn := dial(t, url, nil)
	ack := roundTrip(t, conn, testutil.MarkRecord)
	assert.Equal(t, int64(1), ack.Accepted)
}

func TestInput_StopClosesConnections(t *testing.T) {
	in, _ := newInput(t, DefaultConfig(), nil)
	conn := dial(t, serve(t, in), nil)
	roundTrip(t, conn, `{"entryType":"mark","name":"x","startTime":1}`)

	require.NoError(t, in.Stop(time.Second))
	assert.Equal(t, 0, in.Stats().ConnectionsActive)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestInput_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	in, _ := newInput(t, cfg, nil)

	require.NoError(t, in.Start(t.Context()))
	addr := in.Addr()
	require.NotNil(t, addr)

	err := in.Start(t.Context())
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	conn := dial(t, "ws://"+addr.String()+cfg.Path, nil)
	ack := roundTrip(t, conn, `{"entryType":"longtask","startTime":0,"duration":75}`)
	assert.Equal(t, int64(1), ack.Accepted)

	require.NoError(t, in.Stop(time.Second))
	assert.Nil(t, in.Addr())
	assert.ErrorIs(t, in.Start(t.Context()), errors.ErrAlreadyStopped)
}
