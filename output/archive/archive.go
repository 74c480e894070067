package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/performance"
	"github.com/c360/perfstreams/pkg/retry"
	"github.com/c360/perfstreams/pkg/timestamp"
)

// Object header names set on every archived batch.
const (
	HeaderEntryType = "Perf-Entry-Type"
	HeaderEntries   = "Perf-Entries"
	HeaderDropped   = "Perf-Dropped"
	HeaderFlushedAt = "Perf-Flushed-At"
)

// ObjectPutter is the part of jetstream.ObjectStore the archive writes to.
type ObjectPutter interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
}

var _ ObjectPutter = (jetstream.ObjectStore)(nil)

// Config holds configuration for the batch archive
type Config struct {
	Bucket     string             `json:"bucket"       yaml:"bucket"`
	KeyPrefix  string             `json:"key_prefix"   yaml:"key_prefix"`
	Storage    string             `json:"storage"      yaml:"storage"`
	MaxAgeDays int                `json:"max_age_days" yaml:"max_age_days"`
	MaxBytes   int64              `json:"max_bytes"    yaml:"max_bytes"`
	Retry      errors.RetryConfig `json:"-"            yaml:"-"`
}

// DefaultConfig returns default configuration for the batch archive
func DefaultConfig() Config {
	return Config{
		Bucket:     "PERF_BATCHES",
		KeyPrefix:  "batches",
		Storage:    "file",
		MaxAgeDays: 7,
		Retry:      errors.DefaultRetryConfig(),
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "bucket is required")
	}
	if strings.ContainsAny(c.Bucket, " \t.*>/\\") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("bucket %q may only contain letters, digits, '-' and '_'", c.Bucket))
	}
	if strings.HasPrefix(c.KeyPrefix, "/") || strings.HasSuffix(c.KeyPrefix, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"key_prefix must not start or end with '/'")
	}
	if c.Storage != "file" && c.Storage != "memory" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"storage must be one of: file, memory")
	}
	if c.MaxAgeDays < 0 || c.MaxBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retention limits cannot be negative")
	}
	return nil
}

// BucketConfig returns the object store configuration the bucket is created
// with.
func (c *Config) BucketConfig() jetstream.ObjectStoreConfig {
	storage := jetstream.FileStorage
	if c.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}
	return jetstream.ObjectStoreConfig{
		Bucket:      c.Bucket,
		Description: "perfstreams flushed batches",
		TTL:         time.Duration(c.MaxAgeDays) * 24 * time.Hour,
		MaxBytes:    c.MaxBytes,
		Storage:     storage,
	}
}

// Key returns the object name for batch:
// "<prefix>/<entry type>/<yyyy/mm/dd/hh>/<batch id>.json".
func Key(prefix string, batch performance.Batch) string {
	key := fmt.Sprintf("%s/%s/%s.json", batch.Type, timestamp.Bucket(batch.FlushedAt), batch.ID)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// Output stores every flushed batch as one JSON object.
type Output struct {
	store  ObjectPutter
	cfg    Config
	logger *slog.Logger

	archived atomic.Int64
	bytes    atomic.Int64
	failed   atomic.Int64
}

var _ performance.Listener = (*Output)(nil)

// NewOutput validates cfg and wraps store.
func NewOutput(store ObjectPutter, cfg Config, logger *slog.Logger) (*Output, error) {
	if store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Output", "NewOutput", "object store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "archive-output", "bucket", cfg.Bucket),
	}, nil
}

// Name identifies the output in reporter logs and metrics.
func (o *Output) Name() string {
	return "archive"
}

// OnBatch writes batch to the bucket, retrying transient failures.
func (o *Output) OnBatch(ctx context.Context, batch performance.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		o.failed.Add(1)
		return errors.WrapInvalid(err, "Output", "OnBatch", "encode batch")
	}

	meta := jetstream.ObjectMeta{
		Name:        Key(o.cfg.KeyPrefix, batch),
		Description: fmt.Sprintf("%d %s entries", len(batch.Entries), batch.Type),
		Headers: nats.Header{
			HeaderEntryType: []string{batch.Type.String()},
			HeaderEntries:   []string{strconv.Itoa(len(batch.Entries))},
			HeaderDropped:   []string{strconv.FormatUint(batch.Dropped, 10)},
			HeaderFlushedAt: []string{strconv.FormatInt(timestamp.ToUnixMs(batch.FlushedAt), 10)},
		},
	}

	err = retry.Do(ctx, o.cfg.Retry.ToRetryConfig(), func() error {
		_, err := o.store.Put(ctx, meta, bytes.NewReader(data))
		return err
	})
	if err != nil {
		o.failed.Add(1)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrPublishFailed, err),
			"Output", "OnBatch", "put "+meta.Name)
	}

	o.archived.Add(1)
	o.bytes.Add(int64(len(data)))
	o.logger.Debug("batch archived",
		"key", meta.Name,
		"batch_id", batch.ID,
		"entries", len(batch.Entries),
		"bytes", len(data))
	return nil
}

// Stats is a snapshot of archive counters.
type Stats struct {
	Archived int64 `json:"archived"`
	Bytes    int64 `json:"bytes"`
	Failed   int64 `json:"failed"`
}

// Stats returns current counters.
func (o *Output) Stats() Stats {
	return Stats{
		Archived: o.archived.Load(),
		Bytes:    o.bytes.Load(),
		Failed:   o.failed.Load(),
	}
}
