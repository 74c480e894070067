// Package udp receives performance records as UDP datagrams.
package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/record"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/pkg/retry"
)

// Metrics holds Prometheus metrics for the UDP input
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsTooLarge prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP input metrics
func newMetrics(registry *metric.MetricsRegistry, port int) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"port": strconv.Itoa(port)}
	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "udp",
			Name:        "packets_received_total",
			ConstLabels: labels,
			Help:        "Total UDP datagrams received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "udp",
			Name:        "bytes_received_total",
			ConstLabels: labels,
			Help:        "Total bytes received from UDP",
		}),
		packetsTooLarge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "udp",
			Name:        "packets_truncated_total",
			ConstLabels: labels,
			Help:        "Datagrams that filled the read buffer and were discarded",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "perfstreams",
			Subsystem:   "udp",
			Name:        "socket_errors_total",
			ConstLabels: labels,
			Help:        "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "perfstreams",
			Subsystem:   "udp",
			Name:        "last_activity_timestamp",
			ConstLabels: labels,
			Help:        "Unix timestamp of last received datagram",
		}),
	}

	service := fmt.Sprintf("udp_%d", port)
	if err := registry.RegisterCounter(service, "packets_received", m.packetsReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "bytes_received", m.bytesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "packets_truncated", m.packetsTooLarge); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "socket_errors", m.socketErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(service, "last_activity", m.lastActivity); err != nil {
		return nil, err
	}
	return m, nil
}

// Config holds configuration for the UDP input
type Config struct {
	Bind              string `json:"bind"                yaml:"bind"`
	Port              int    `json:"port"                yaml:"port"`
	MaxDatagramBytes  int    `json:"max_datagram_bytes"  yaml:"max_datagram_bytes"`
	SocketBufferBytes int    `json:"socket_buffer_bytes" yaml:"socket_buffer_bytes"`
}

// DefaultConfig returns defaults for the UDP input
func DefaultConfig() Config {
	return Config{
		Bind:              "0.0.0.0",
		Port:              8125,
		MaxDatagramBytes:  65536,
		SocketBufferBytes: 2 * 1024 * 1024,
	}
}

// Validate checks the configuration for errors. Port 0 asks the OS for a
// free port.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, c.Port),
			"Config", "Validate", "port range")
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: bind %q is not an IP address", errors.ErrInvalidConfig, c.Bind),
			"Config", "Validate", "bind address")
	}
	if c.MaxDatagramBytes < 512 || c.MaxDatagramBytes > 65536 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_datagram_bytes must be between 512 and 65536")
	}
	if c.SocketBufferBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"socket_buffer_bytes cannot be negative")
	}
	return nil
}

// Input listens on a UDP socket and hands every datagram to an Ingester.
type Input struct {
	cfg      Config
	ingester *record.Ingester
	logger   *slog.Logger
	metrics  *Metrics

	retryConfig retry.Config

	mu       sync.RWMutex
	conn     *net.UDPConn
	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool

	packets      atomic.Int64
	bytes        atomic.Int64
	truncated    atomic.Int64
	errCount     atomic.Int64
	lastActivity atomic.Value // time.Time
}

// NewInput validates cfg and creates an input that is not yet listening.
// registry may be nil.
func NewInput(cfg Config, ingester *record.Ingester, logger *slog.Logger, registry *metric.MetricsRegistry) (*Input, error) {
	if ingester == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "udp-input", "NewInput", "ingester required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}

	metrics, err := newMetrics(registry, cfg.Port)
	if err != nil {
		return nil, errors.WrapTransient(err, "udp-input", "NewInput", "metrics registration")
	}

	if logger == nil {
		logger = slog.Default()
	}

	u := &Input{
		cfg:         cfg,
		ingester:    ingester,
		logger:      logger.With("component", "udp-input", "port", cfg.Port),
		metrics:     metrics,
		retryConfig: retry.Quick(),
	}
	u.lastActivity.Store(time.Time{})
	return u, nil
}

// Start binds the socket, retrying transient failures, and starts reading.
func (u *Input) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running.Load() {
		return nil
	}

	if err := retry.Do(ctx, u.retryConfig, u.bindSocket); err != nil {
		return errors.WrapTransient(err, "udp-input", "Start", "socket binding")
	}

	u.shutdown = make(chan struct{})
	u.done = make(chan struct{})
	u.running.Store(true)

	conn, shutdown, done := u.conn, u.shutdown, u.done
	go func() {
		defer close(done)
		u.readLoop(ctx, conn, shutdown)
	}()

	u.logger.Info("udp input listening", "addr", conn.LocalAddr().String())
	return nil
}

// bindSocket creates and binds the UDP socket. Must be called with u.mu held.
func (u *Input) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(u.cfg.Bind, strconv.Itoa(u.cfg.Port)))
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("resolve UDP address %s:%d: %w", u.cfg.Bind, u.cfg.Port, err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", u.cfg.Port, err)
	}

	if u.cfg.SocketBufferBytes > 0 {
		if err := conn.SetReadBuffer(u.cfg.SocketBufferBytes); err != nil {
			u.logger.Warn("could not set UDP buffer size",
				"buffer_size", u.cfg.SocketBufferBytes,
				"error", err)
		}
	}

	u.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Start.
func (u *Input) Addr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Stop closes the socket and waits up to timeout for the read loop to exit.
func (u *Input) Stop(timeout time.Duration) error {
	if !u.running.CompareAndSwap(true, false) {
		return nil
	}

	u.mu.Lock()
	close(u.shutdown)
	// closing unblocks ReadFromUDP
	_ = u.conn.Close()
	done := u.done
	u.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-input", "Stop", "graceful shutdown")
	}

	u.mu.Lock()
	u.conn = nil
	u.mu.Unlock()
	return nil
}

func (u *Input) readLoop(ctx context.Context, conn *net.UDPConn, shutdown <-chan struct{}) {
	// one extra byte detects datagrams larger than MaxDatagramBytes
	buf := make([]byte, u.cfg.MaxDatagramBytes+1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		// deadline lets the loop observe shutdown
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if stderrors.Is(err, net.ErrClosed) {
				return
			}

			u.errCount.Add(1)
			if u.metrics != nil {
				u.metrics.socketErrors.Inc()
			}
			if !errors.IsTransient(err) {
				u.logger.Error("udp read failed, stopping", "error", err)
				return
			}
			continue
		}

		now := time.Now()
		u.packets.Add(1)
		u.bytes.Add(int64(n))
		u.lastActivity.Store(now)
		if u.metrics != nil {
			u.metrics.packetsReceived.Inc()
			u.metrics.bytesReceived.Add(float64(n))
			u.metrics.lastActivity.Set(float64(now.Unix()))
		}

		if n > u.cfg.MaxDatagramBytes {
			u.truncated.Add(1)
			if u.metrics != nil {
				u.metrics.packetsTooLarge.Inc()
			}
			u.logger.Debug("discarding oversized datagram", "from", from.String())
			continue
		}

		// Handle does not retain data, so buf can be reused
		u.ingester.Handle(ctx, "udp:"+from.String(), buf[:n])
	}
}

// Stats is a snapshot of UDP input counters.
type Stats struct {
	Packets      int64     `json:"packets"`
	Bytes        int64     `json:"bytes"`
	Truncated    int64     `json:"truncated"`
	Errors       int64     `json:"errors"`
	LastActivity time.Time `json:"last_activity"`
	Records      record.Stats `json:"records"`
}

// Stats returns current counters.
func (u *Input) Stats() Stats {
	last, _ := u.lastActivity.Load().(time.Time)
	return Stats{
		Packets:      u.packets.Load(),
		Bytes:        u.bytes.Load(),
		Truncated:    u.truncated.Load(),
		Errors:       u.errCount.Load(),
		LastActivity: last,
		Records:      u.ingester.Stats(),
	}
}
