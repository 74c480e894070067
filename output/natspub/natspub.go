// Package natspub publishes flushed performance batches to NATS.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/pkg/retry"
)

// Publisher is the subset of *nats.Conn and *natsclient.Client used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds configuration for the NATS publisher
type Config struct {
	SubjectPrefix        string             `json:"subject_prefix"          yaml:"subject_prefix"`
	MaxEntriesPerMessage int                `json:"max_entries_per_message" yaml:"max_entries_per_message"`
	Retry                errors.RetryConfig `json:"-"                       yaml:"-"`
}

// DefaultConfig returns default configuration for the NATS publisher
func DefaultConfig() Config {
	return Config{
		SubjectPrefix:        "perf.entries",
		MaxEntriesPerMessage: 256,
		Retry:                errors.DefaultRetryConfig(),
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.SubjectPrefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "subject_prefix is required")
	}
	if strings.ContainsAny(c.SubjectPrefix, " \t>*") || strings.HasSuffix(c.SubjectPrefix, ".") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("subject_prefix %q is not a valid publish subject", c.SubjectPrefix))
	}
	if c.MaxEntriesPerMessage <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_entries_per_message must be positive")
	}
	return nil
}

// Message is the wire form of one published chunk of a batch. A batch larger
// than MaxEntriesPerMessage is split into Parts messages sharing the batch ID;
// Dropped is carried on the first part only.
type Message struct {
	performance.Batch
	Part  int `json:"part"`
	Parts int `json:"parts"`
}

// Output publishes batches to "<prefix>.<entry type>".
type Output struct {
	pub    Publisher
	cfg    Config
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

var _ performance.Listener = (*Output)(nil)

// NewOutput validates cfg and wraps pub.
func NewOutput(pub Publisher, cfg Config, logger *slog.Logger) (*Output, error) {
	if pub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Output", "NewOutput", "publisher required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		pub:    pub,
		cfg:    cfg,
		logger: logger.With("component", "nats-output", "subject_prefix", cfg.SubjectPrefix),
	}, nil
}

// Name identifies the output in reporter logs and metrics.
func (o *Output) Name() string {
	return "nats"
}

// Subject returns the subject batches of type t are published to.
func (o *Output) Subject(t performance.EntryType) string {
	return o.cfg.SubjectPrefix + "." + t.String()
}

// OnBatch publishes batch, retrying transient failures.
func (o *Output) OnBatch(ctx context.Context, batch performance.Batch) error {
	subject := o.Subject(batch.Type)
	msgs := split(batch, o.cfg.MaxEntriesPerMessage)

	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			o.failed.Add(1)
			return errors.WrapInvalid(err, "Output", "OnBatch", "encode batch")
		}

		err = retry.Do(ctx, o.cfg.Retry.ToRetryConfig(), func() error {
			return o.pub.Publish(subject, data)
		})
		if err != nil {
			o.failed.Add(1)
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrPublishFailed, err),
				"Output", "OnBatch", fmt.Sprintf("publish part %d/%d to %s", msg.Part, msg.Parts, subject))
		}
		o.published.Add(1)
	}

	o.logger.Debug("batch published",
		"subject", subject,
		"batch_id", batch.ID,
		"entries", len(batch.Entries),
		"messages", len(msgs))
	return nil
}

func split(batch performance.Batch, max int) []Message {
	if len(batch.Entries) <= max {
		return []Message{{Batch: batch, Part: 1, Parts: 1}}
	}

	parts := (len(batch.Entries) + max - 1) / max
	msgs := make([]Message, 0, parts)
	for i := 0; i < parts; i++ {
		lo, hi := i*max, min((i+1)*max, len(batch.Entries))
		chunk := batch
		chunk.Entries = batch.Entries[lo:hi]
		if i > 0 {
			chunk.Dropped = 0
		}
		msgs = append(msgs, Message{Batch: chunk, Part: i + 1, Parts: parts})
	}
	return msgs
}

// Stats is a snapshot of publisher counters.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Stats returns current counters.
func (o *Output) Stats() Stats {
	return Stats{Published: o.published.Load(), Failed: o.failed.Load()}
}
