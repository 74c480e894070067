// Package websocket accepts performance records over WebSocket connections.
package websocket

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/record"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/pkg/tlsutil"
)

const writeWait = 5 * time.Second

// Ack is written back after every message. Invalid is 1 when the message
// was not a decodable payload; Accepted and Rejected count its records.
type Ack struct {
	Type     string `json:"type"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Invalid  int64  `json:"invalid"`
}

func newAck(res record.Stats) Ack {
	return Ack{Type: "ack", Accepted: res.Accepted, Rejected: res.Rejected, Invalid: res.Invalid}
}

// Metrics holds Prometheus metrics for the WebSocket ingest
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messagesReceived  prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "perfstreams",
			Subsystem: "websocket_ingest",
			Name:      "connections_active",
			Help:      "Currently open ingest connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "perfstreams",
			Subsystem: "websocket_ingest",
			Name:      "connections_total",
			Help:      "Ingest connections accepted",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "perfstreams",
			Subsystem: "websocket_ingest",
			Name:      "messages_received_total",
			Help:      "WebSocket messages received",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perfstreams",
			Subsystem: "websocket_ingest",
			Name:      "errors_total",
			Help:      "Ingest errors by type",
		}, []string{"type"}),
	}

	const service = "websocket_ingest"
	if err := registry.RegisterGauge(service, "connections_active", m.connectionsActive); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "connections_total", m.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "messages_received", m.messagesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(service, "errors", m.errorsTotal); err != nil {
		return nil, err
	}
	return m, nil
}

// Input is a WebSocket server feeding every received message to an Ingester.
type Input struct {
	cfg      Config
	ingester *record.Ingester
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	lifecycleMu sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
	started     bool

	clientsMu sync.Mutex
	clients   map[string]*websocket.Conn
	reserved  int // slots held by handshakes in progress, guarded by clientsMu
	wg        sync.WaitGroup

	connectionsTotal atomic.Int64
	messages         atomic.Int64
	errorCount       atomic.Int64
}

// NewInput validates cfg and creates a server that is not yet listening.
// Handler can be mounted on another mux instead of calling Start.
func NewInput(cfg Config, ingester *record.Ingester, logger *slog.Logger, registry *metric.MetricsRegistry) (*Input, error) {
	if ingester == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "websocket_input", "NewInput", "ingester required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, errors.WrapTransient(err, "websocket_input", "NewInput", "metrics registration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Input{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.With("component", "websocket-ingest"),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			// producers are not browsers; access is controlled by Auth
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*websocket.Conn),
	}, nil
}

// Handler returns the HTTP handler serving the ingest endpoint at cfg.Path.
func (i *Input) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(i.cfg.Path, i.handleWebSocket)
	return mux
}

// Start listens on cfg.Port and serves Handler.
func (i *Input) Start(_ context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "websocket_input", "Start", "listen")
	}
	if i.ctx.Err() != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "websocket_input", "Start", "listen")
	}

	tlsConfig, err := tlsutil.LoadServerTLSConfig(i.cfg.TLS)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", i.cfg.Port))
	if err != nil {
		return errors.WrapTransient(err, "websocket_input", "Start", "listen")
	}

	i.listener = ln
	i.httpServer = &http.Server{
		Handler:           i.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}

	srv := i.httpServer
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		var err error
		if tlsConfig != nil {
			// certificates are already in TLSConfig
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			i.trackError("server_error")
			i.logger.Error("websocket ingest server failed", "error", err)
		}
	}()

	i.started = true
	i.logger.Info("websocket ingest listening",
		"addr", ln.Addr().String(),
		"path", i.cfg.Path,
		"tls", tlsConfig != nil)
	return nil
}

// Addr returns the listening address, or nil when not started.
func (i *Input) Addr() net.Addr {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// Stop shuts the server down, closes every connection and waits up to
// timeout for connection handlers to exit. An Input cannot be restarted.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if i.httpServer != nil {
		// hijacked websocket conns are not tracked by Shutdown
		_ = i.httpServer.Shutdown(ctx)
		i.httpServer = nil
		i.listener = nil
	}

	i.clientsMu.Lock()
	for _, conn := range i.clients {
		_ = conn.Close()
	}
	i.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"websocket_input", "Stop", "graceful shutdown")
	}
}

func (i *Input) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if i.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if !i.authenticateRequest(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		i.trackError("auth_failed")
		return
	}

	if !i.reserveSlot() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		i.trackError("connection_limit")
		return
	}

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.clientsMu.Lock()
		i.reserved--
		i.clientsMu.Unlock()
		// Upgrade has already written the HTTP error
		i.trackError("upgrade_error")
		return
	}
	conn.SetReadLimit(i.cfg.ReadLimitBytes)

	clientID := fmt.Sprintf("client-%d", i.connectionsTotal.Add(1))

	i.clientsMu.Lock()
	i.reserved--
	i.clients[clientID] = conn
	i.clientsMu.Unlock()

	if i.metrics != nil {
		i.metrics.connectionsActive.Inc()
		i.metrics.connectionsTotal.Inc()
	}

	i.wg.Add(1)
	go i.handleClient(clientID, conn)
}

// reserveSlot claims a connection slot before the handshake so concurrent
// upgrades cannot exceed MaxConnections.
func (i *Input) reserveSlot() bool {
	i.clientsMu.Lock()
	defer i.clientsMu.Unlock()
	if len(i.clients)+i.reserved >= i.cfg.MaxConnections {
		return false
	}
	i.reserved++
	return true
}

// authenticateRequest validates the credentials in r against cfg.Auth
func (i *Input) authenticateRequest(r *http.Request) bool {
	switch i.cfg.Auth.Type {
	case "", "none":
		return true

	case "bearer":
		expected := os.Getenv(i.cfg.Auth.BearerTokenEnv)
		if expected == "" {
			return false
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1

	case "basic":
		username := os.Getenv(i.cfg.Auth.BasicUsernameEnv)
		password := os.Getenv(i.cfg.Auth.BasicPasswordEnv)
		if username == "" || password == "" {
			return false
		}
		reqUser, reqPass, ok := r.BasicAuth()
		if !ok {
			return false
		}
		userMatch := subtle.ConstantTimeCompare([]byte(reqUser), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(reqPass), []byte(password)) == 1
		return userMatch && passMatch

	default:
		return false
	}
}

func (i *Input) trackError(errorType string) {
	i.errorCount.Add(1)
	if i.metrics != nil {
		i.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
}

// handleClient reads messages until the peer goes away or Stop closes conn.
// It is the only writer on conn.
func (i *Input) handleClient(clientID string, conn *websocket.Conn) {
	defer i.wg.Done()
	defer func() {
		_ = conn.Close()
		i.clientsMu.Lock()
		delete(i.clients, clientID)
		i.clientsMu.Unlock()
		if i.metrics != nil {
			i.metrics.connectionsActive.Dec()
		}
	}()

	source := "ws:" + conn.RemoteAddr().String()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				i.ctx.Err() == nil {
				i.trackError("read_error")
				i.logger.Debug("websocket read failed", "client", clientID, "error", err)
			}
			return
		}

		i.messages.Add(1)
		if i.metrics != nil {
			i.metrics.messagesReceived.Inc()
		}

		res := i.ingester.Handle(i.ctx, source, message)

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(newAck(res)); err != nil {
			i.trackError("write_error")
			return
		}
	}
}

// Stats is a snapshot of WebSocket ingest counters.
type Stats struct {
	ConnectionsActive int          `json:"connections_active"`
	ConnectionsTotal  int64        `json:"connections_total"`
	Messages          int64        `json:"messages"`
	Errors            int64        `json:"errors"`
	Records           record.Stats `json:"records"`
}

// Stats returns current counters.
func (i *Input) Stats() Stats {
	i.clientsMu.Lock()
	active := len(i.clients)
	i.clientsMu.Unlock()
	return Stats{
		ConnectionsActive: active,
		ConnectionsTotal:  i.connectionsTotal.Load(),
		Messages:          i.messages.Load(),
		Errors:            i.errorCount.Load(),
		Records:           i.ingester.Stats(),
	}
}
