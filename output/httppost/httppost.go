// Package httppost delivers flushed performance batches to an HTTP endpoint.
package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/pkg/retry"
	"github.com/c360/perfstreams/pkg/tlsutil"
)

// Config holds configuration for the HTTP POST sink
type Config struct {
	URL         string               `json:"url"          yaml:"url"`
	Headers     map[string]string    `json:"headers"      yaml:"headers"`
	Timeout     int                  `json:"timeout"      yaml:"timeout"` // seconds
	RetryCount  int                  `json:"retry_count"  yaml:"retry_count"`
	ContentType string               `json:"content_type" yaml:"content_type"`
	TLS         tlsutil.ClientConfig `json:"tls"          yaml:"tls"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url is required")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(fmt.Errorf("%w: scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"Config", "Validate", "url scheme must be http or https")
	}

	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}

	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_count must be between 0 and 10")
	}

	return nil
}

// DefaultConfig returns default configuration for the HTTP POST sink
func DefaultConfig() Config {
	return Config{
		URL:         "http://localhost:8080/perf",
		Headers:     make(map[string]string),
		Timeout:     30,
		RetryCount:  3,
		ContentType: "application/json",
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// retryable reports whether the receiver might accept the same batch later.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Output POSTs each batch as one JSON document.
type Output struct {
	url         string
	headers     map[string]string
	contentType string
	httpClient  *http.Client
	retryConfig retry.Config
	logger      *slog.Logger

	sent     atomic.Int64
	retried  atomic.Int64
	failed   atomic.Int64
	lastSent atomic.Int64 // unix nanos
}

var _ performance.Listener = (*Output)(nil)

// NewOutput validates cfg and builds the HTTP client.
func NewOutput(cfg Config, logger *slog.Logger) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if cfg.TLS.Configured() {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Output{
		url:         cfg.URL,
		headers:     cfg.Headers,
		contentType: contentType,
		httpClient:  httpClient,
		retryConfig: retry.Config{
			MaxAttempts:  cfg.RetryCount + 1,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		logger: logger.With("component", "httppost-output"),
	}, nil
}

// Name identifies the sink in logs and metrics.
func (h *Output) Name() string {
	return "httppost"
}

// OnBatch sends b, retrying transport failures and retryable status codes.
func (h *Output) OnBatch(ctx context.Context, b performance.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		h.failed.Add(1)
		return errors.WrapFatal(err, "httppost-output", "OnBatch", "encode batch")
	}

	attempt := 0
	err = retry.Do(ctx, h.retryConfig, func() error {
		attempt++
		if attempt > 1 {
			h.retried.Add(1)
		}
		err := h.sendHTTPPost(ctx, data)
		var se *StatusError
		if stderrors.As(err, &se) && !se.retryable() {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		h.failed.Add(1)
		var se *StatusError
		if stderrors.As(err, &se) && !se.retryable() {
			return errors.WrapInvalid(err, "httppost-output", "OnBatch", "endpoint rejected batch")
		}
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrPublishFailed, err),
			"httppost-output", "OnBatch", "post batch")
	}

	h.sent.Add(1)
	h.lastSent.Store(time.Now().UnixNano())
	h.logger.Debug("batch posted",
		"batch_id", b.ID.String(),
		"type", b.Type.String(),
		"entries", len(b.Entries),
		"attempts", attempt)
	return nil
}

// sendHTTPPost sends a single HTTP POST request
func (h *Output) sendHTTPPost(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", h.contentType)
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Stats is a snapshot of sink counters.
type Stats struct {
	Sent     int64     `json:"sent"`
	Retried  int64     `json:"retried"`
	Failed   int64     `json:"failed"`
	LastSent time.Time `json:"last_sent"`
}

// Stats returns current counters.
func (h *Output) Stats() Stats {
	var last time.Time
	if n := h.lastSent.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return Stats{
		Sent:     h.sent.Load(),
		Retried:  h.retried.Load(),
		Failed:   h.failed.Load(),
		LastSent: last,
	}
}
