// Package config loads the perfstreams service configuration.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/natsingest"
	"github.com/c360/perfstreams/input/udp"
	"github.com/c360/perfstreams/input/websocket"
	"github.com/c360/perfstreams/output/archive"
	"github.com/c360/perfstreams/output/file"
	"github.com/c360/perfstreams/output/httppost"
	"github.com/c360/perfstreams/output/natspub"
	"github.com/c360/perfstreams/performance"
)

// Duration is a time.Duration that reads and writes Go duration strings.
// A "d" suffix ("7d") is accepted for days, and bare numbers are nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*d = Duration(t)
		return nil
	case string:
		parsed, err := parseDurationWithDays(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDurationWithDays(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Config is the complete service configuration.
type Config struct {
	Reporter  ReporterConfig  `json:"reporter"  yaml:"reporter"`
	NATS      NATSConfig      `json:"nats"      yaml:"nats"`
	Publish   PublishConfig   `json:"publish"   yaml:"publish"`
	Archive   ArchiveConfig   `json:"archive"   yaml:"archive"`
	Ingest    IngestConfig    `json:"ingest"    yaml:"ingest"`
	File      FileConfig      `json:"file"      yaml:"file"`
	HTTP      HTTPConfig      `json:"http"      yaml:"http"`
	UDP       UDPConfig       `json:"udp"       yaml:"udp"`
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
	Metrics   MetricsConfig   `json:"metrics"   yaml:"metrics"`
}

// ReporterConfig sizes the reporter's buffers and controls flushing.
type ReporterConfig struct {
	MarkBufferSize         int      `json:"mark_buffer_size"         yaml:"mark_buffer_size"`
	MeasureBufferSize      int      `json:"measure_buffer_size"      yaml:"measure_buffer_size"`
	EventBufferSize        int      `json:"event_buffer_size"        yaml:"event_buffer_size"`
	LongTaskBufferSize     int      `json:"longtask_buffer_size"     yaml:"longtask_buffer_size"`
	EventDurationThreshold Duration `json:"event_duration_threshold" yaml:"event_duration_threshold"`
	LongTaskThreshold      Duration `json:"longtask_threshold"       yaml:"longtask_threshold"`
	FlushWorkers           int      `json:"flush_workers"            yaml:"flush_workers"`
	FlushQueueSize         int      `json:"flush_queue_size"         yaml:"flush_queue_size"`
	FlushInterval          Duration `json:"flush_interval"           yaml:"flush_interval"`
	DropLogInterval        Duration `json:"drop_log_interval"        yaml:"drop_log_interval"`
}

// Performance converts r to a performance.Config.
func (r ReporterConfig) Performance() performance.Config {
	return performance.Config{
		MarkBufferSize:         r.MarkBufferSize,
		MeasureBufferSize:      r.MeasureBufferSize,
		EventBufferSize:        r.EventBufferSize,
		LongTaskBufferSize:     r.LongTaskBufferSize,
		EventDurationThreshold: r.EventDurationThreshold.Std(),
		LongTaskThreshold:      r.LongTaskThreshold.Std(),
		FlushWorkers:           r.FlushWorkers,
		FlushQueueSize:         r.FlushQueueSize,
		FlushInterval:          r.FlushInterval.Std(),
		DropLogInterval:        r.DropLogInterval.Std(),
	}
}

func reporterFrom(p performance.Config) ReporterConfig {
	return ReporterConfig{
		MarkBufferSize:         p.MarkBufferSize,
		MeasureBufferSize:      p.MeasureBufferSize,
		EventBufferSize:        p.EventBufferSize,
		LongTaskBufferSize:     p.LongTaskBufferSize,
		EventDurationThreshold: Duration(p.EventDurationThreshold),
		LongTaskThreshold:      Duration(p.LongTaskThreshold),
		FlushWorkers:           p.FlushWorkers,
		FlushQueueSize:         p.FlushQueueSize,
		FlushInterval:          Duration(p.FlushInterval),
		DropLogInterval:        Duration(p.DropLogInterval),
	}
}

// NATSConfig holds the NATS connection settings shared by publish and ingest.
type NATSConfig struct {
	URL           string   `json:"url"            yaml:"url"`
	Name          string   `json:"name"           yaml:"name"`
	Username      string   `json:"username"       yaml:"username"`
	Password      string   `json:"password"       yaml:"password"`
	Token         string   `json:"token"          yaml:"token"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects"` // -1 for unlimited
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	Timeout       Duration `json:"timeout"        yaml:"timeout"`
}

// PublishConfig enables the NATS batch sink.
type PublishConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	natspub.Config `yaml:",inline"`
	// EntryTypes limits the published types; empty means all.
	EntryTypes []string `json:"entry_types,omitempty" yaml:"entry_types,omitempty"`
}

// ArchiveConfig enables the JetStream object store sink.
type ArchiveConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	archive.Config `yaml:",inline"`
	EntryTypes     []string `json:"entry_types,omitempty" yaml:"entry_types,omitempty"`
}

// IngestConfig enables the NATS record ingest.
type IngestConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	natsingest.Config `yaml:",inline"`
}

// FileConfig enables the rotating file sink.
type FileConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	file.Config `yaml:",inline"`
	EntryTypes  []string `json:"entry_types,omitempty" yaml:"entry_types,omitempty"`
}

// HTTPConfig enables the HTTP POST sink.
type HTTPConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	httppost.Config `yaml:",inline"`
	EntryTypes      []string `json:"entry_types,omitempty" yaml:"entry_types,omitempty"`
}

// UDPConfig enables the UDP datagram ingest.
type UDPConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	udp.Config `yaml:",inline"`
}

// WebSocketConfig enables the WebSocket ingest server.
type WebSocketConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	websocket.Config `yaml:",inline"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port"    yaml:"port"`
	Path    string `json:"path"    yaml:"path"`
}

// Default returns the configuration used when no file is given: the reporter
// with defaults, metrics on :9090, and every sink and input disabled.
func Default() *Config {
	return &Config{
		Reporter: reporterFrom(performance.DefaultConfig()),
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "perfstreams",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
		},
		Publish:   PublishConfig{Config: natspub.DefaultConfig()},
		Archive:   ArchiveConfig{Config: archive.DefaultConfig()},
		Ingest:    IngestConfig{Config: natsingest.DefaultConfig()},
		File:      FileConfig{Config: file.DefaultConfig()},
		HTTP:      HTTPConfig{Config: httppost.DefaultConfig()},
		UDP:       UDPConfig{Config: udp.DefaultConfig()},
		WebSocket: WebSocketConfig{Config: websocket.DefaultConfig()},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// UsesNATS reports whether any enabled component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Publish.Enabled || c.Archive.Enabled || c.Ingest.Enabled
}

// Validate checks the configuration for errors. Disabled components are not
// validated.
func (c *Config) Validate() error {
	if err := c.Reporter.Performance().Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "reporter")
	}

	if c.UsesNATS() {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "nats.url is required")
		}
		if c.NATS.ReconnectWait < 0 || c.NATS.Timeout < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"nats durations cannot be negative")
		}
	}

	if c.Publish.Enabled {
		if err := c.Publish.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "publish")
		}
		if _, err := ParseEntryTypes(c.Publish.EntryTypes); err != nil {
			return errors.Wrap(err, "Config", "Validate", "publish.entry_types")
		}
	}
	if c.Archive.Enabled {
		if err := c.Archive.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "archive")
		}
		if _, err := ParseEntryTypes(c.Archive.EntryTypes); err != nil {
			return errors.Wrap(err, "Config", "Validate", "archive.entry_types")
		}
	}
	if c.Ingest.Enabled {
		if err := c.Ingest.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "ingest")
		}
	}
	if c.File.Enabled {
		if err := c.File.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "file")
		}
		if _, err := ParseEntryTypes(c.File.EntryTypes); err != nil {
			return errors.Wrap(err, "Config", "Validate", "file.entry_types")
		}
	}
	if c.HTTP.Enabled {
		if err := c.HTTP.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "http")
		}
		if _, err := ParseEntryTypes(c.HTTP.EntryTypes); err != nil {
			return errors.Wrap(err, "Config", "Validate", "http.entry_types")
		}
	}
	if c.UDP.Enabled {
		if err := c.UDP.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "udp")
		}
	}
	if c.WebSocket.Enabled {
		if err := c.WebSocket.Config.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "websocket")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return errors.WrapInvalid(fmt.Errorf("%w: metrics.port %d", errors.ErrInvalidConfig, c.Metrics.Port),
				"Config", "Validate", "metrics port")
		}
		if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "metrics.path must start with /")
		}
	}
	return nil
}

// ParseEntryTypes converts names to entry types. An empty list yields nil,
// which subscribes to every type.
func ParseEntryTypes(names []string) ([]performance.EntryType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]performance.EntryType, 0, len(names))
	for _, name := range names {
		t, err := performance.ParseEntryType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil
	}
	// fields excluded from JSON
	clone.Publish.Retry = c.Publish.Retry
	clone.Archive.Retry = c.Archive.Retry
	return &clone
}

// String renders c as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked == nil {
		return "<invalid config>"
	}
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
