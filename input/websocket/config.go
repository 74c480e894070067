package websocket

import (
	"fmt"
	"strings"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/pkg/tlsutil"
)

// Config holds configuration for the WebSocket ingest server
type Config struct {
	Port              int        `json:"port"               yaml:"port"`
	Path              string     `json:"path"               yaml:"path"`
	MaxConnections    int        `json:"max_connections"    yaml:"max_connections"`
	ReadLimitBytes    int64      `json:"read_limit_bytes"   yaml:"read_limit_bytes"`
	ReadBufferSize    int        `json:"read_buffer_size"   yaml:"read_buffer_size"`
	WriteBufferSize   int        `json:"write_buffer_size"  yaml:"write_buffer_size"`
	EnableCompression bool       `json:"enable_compression" yaml:"enable_compression"`
	Auth              AuthConfig `json:"auth"               yaml:"auth"`

	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls"`
}

// AuthConfig holds authentication configuration. Secrets are read from the
// named environment variables at request time.
type AuthConfig struct {
	Type             string `json:"type"                         yaml:"type"`
	BearerTokenEnv   string `json:"bearer_token_env,omitempty"   yaml:"bearer_token_env,omitempty"`
	BasicUsernameEnv string `json:"basic_username_env,omitempty" yaml:"basic_username_env,omitempty"`
	BasicPasswordEnv string `json:"basic_password_env,omitempty" yaml:"basic_password_env,omitempty"`
}

// DefaultConfig returns the default configuration for the WebSocket ingest
func DefaultConfig() Config {
	return Config{
		Port:            8081,
		Path:            "/ingest",
		MaxConnections:  100,
		ReadLimitBytes:  1 << 20,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Auth:            AuthConfig{Type: "none"},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, c.Port),
			"Config", "Validate", "port range")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path must start with /")
	}
	if c.MaxConnections <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_connections must be positive")
	}
	if c.ReadLimitBytes <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "read_limit_bytes must be positive")
	}

	switch c.Auth.Type {
	case "", "none":
	case "bearer":
		if c.Auth.BearerTokenEnv == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "bearer auth needs bearer_token_env")
		}
	case "basic":
		if c.Auth.BasicUsernameEnv == "" || c.Auth.BasicPasswordEnv == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"basic auth needs basic_username_env and basic_password_env")
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: auth type %q", errors.ErrInvalidConfig, c.Auth.Type),
			"Config", "Validate", "auth type")
	}
	return nil
}
