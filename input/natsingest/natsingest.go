package natsingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/input/record"
)

// Subscriber is the subset of *natsclient.Client used here.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, string, []byte)) error
	Unsubscribe(subject string) error
}

// Config holds configuration for the NATS ingest.
type Config struct {
	Subject string `json:"subject" yaml:"subject"`
}

// DefaultConfig returns default configuration for the NATS ingest.
func DefaultConfig() Config {
	return Config{Subject: "perf.ingest"}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "subject is required")
	}
	if strings.ContainsAny(c.Subject, " \t") || strings.HasPrefix(c.Subject, ".") || strings.HasSuffix(c.Subject, ".") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("subject %q is not a valid subscription subject", c.Subject))
	}
	return nil
}

// Input feeds records published on a NATS subject into an Ingester.
type Input struct {
	sub      Subscriber
	cfg      Config
	ingester *record.Ingester
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewInput validates cfg and returns an input that is not yet subscribed.
func NewInput(sub Subscriber, cfg Config, ingester *record.Ingester, logger *slog.Logger) (*Input, error) {
	if sub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Input", "NewInput", "subscriber required")
	}
	if ingester == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Input", "NewInput", "ingester required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Input{
		sub:      sub,
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.With("component", "nats-ingest", "subject", cfg.Subject),
	}, nil
}

// Start subscribes to the configured subject. The subscription lives until
// Stop or until the underlying client is closed.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Input", "Start", "subscribe")
	}

	err := in.sub.Subscribe(ctx, in.cfg.Subject, func(msgCtx context.Context, subject string, data []byte) {
		in.ingester.Handle(msgCtx, subject, data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Input", "Start", "subscribe "+in.cfg.Subject)
	}

	in.started = true
	in.logger.Info("ingest subscribed")
	return nil
}

// Stop unsubscribes so no further records reach the ingester. Stopping an
// input that was never started is a no-op.
func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.started {
		return nil
	}
	in.started = false
	if err := in.sub.Unsubscribe(in.cfg.Subject); err != nil {
		return errors.Wrap(err, "Input", "Stop", "unsubscribe "+in.cfg.Subject)
	}
	in.logger.Info("ingest unsubscribed")
	return nil
}

// Subject returns the subscribed subject.
func (in *Input) Subject() string {
	return in.cfg.Subject
}

// Stats returns the ingester counters.
func (in *Input) Stats() record.Stats {
	return in.ingester.Stats()
}
