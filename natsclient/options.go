package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
)

// ClientOption configures a Client. An option returns an error when its
// value is out of range; NewClient reports it as invalid.
type ClientOption func(*Client) error

func badOption(name string, v any) error {
	return fmt.Errorf("%w: %s %v", errors.ErrInvalidConfig, name, v)
}

func durationOption(name string, d time.Duration, set func(*Client, time.Duration)) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return badOption(name, d)
		}
		set(c, d)
		return nil
	}
}

// WithMaxReconnects limits reconnect attempts. -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return badOption("max reconnects", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return durationOption("reconnect wait", d, func(c *Client, d time.Duration) { c.reconnectWait = d })
}

// WithPingInterval sets how often the server is pinged.
func WithPingInterval(d time.Duration) ClientOption {
	return durationOption("ping interval", d, func(c *Client, d time.Duration) { c.pingInterval = d })
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return durationOption("timeout", d, func(c *Client, d time.Duration) { c.timeout = d })
}

// WithDrainTimeout bounds how long Close waits for subscriptions to drain.
func WithDrainTimeout(d time.Duration) ClientOption {
	return durationOption("drain timeout", d, func(c *Client, d time.Duration) { c.drainTimeout = d })
}

// WithHandlerTimeout bounds the context given to subscription handlers.
func WithHandlerTimeout(d time.Duration) ClientOption {
	return durationOption("handler timeout", d, func(c *Client, d time.Duration) { c.handlerTimeout = d })
}

// WithCircuitBreakerThreshold sets how many consecutive failures open the
// circuit.
func WithCircuitBreakerThreshold(n int32) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return badOption("circuit breaker threshold", n)
		}
		c.circuitThreshold = n
		return nil
	}
}

// WithMaxBackoff caps how long an open circuit stays open. At least one
// second.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			return badOption("max backoff", d)
		}
		c.maxBackoff = d
		return nil
	}
}

// WithLogger replaces the default logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection state and reconnects into registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}

// WithHealthChangeCallback is called with the new state whenever the
// connection comes up or goes down.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCredentials authenticates with a user and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return badOption("username", `""`)
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
