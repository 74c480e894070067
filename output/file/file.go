// Package file provides a listener that writes flushed performance batches
// to a rotating JSON lines file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/performance"
)

// Config holds configuration for the file output
type Config struct {
	Path       string `json:"path"        yaml:"path"`
	Format     string `json:"format"      yaml:"format"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress"    yaml:"compress"`
}

// DefaultConfig returns default configuration for file output
func DefaultConfig() Config {
	return Config{
		Path:       "/tmp/perfstreams/entries.jsonl",
		Format:     "jsonl",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 7,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.Format != "jsonl" && c.Format != "json" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: json, jsonl")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rotation limits cannot be negative")
	}
	return nil
}

// droppedRecord is written in place of entries lost before the flush.
type droppedRecord struct {
	Type    performance.EntryType `json:"entryType"`
	Dropped uint64                `json:"dropped"`
	BatchID uuid.UUID             `json:"batchId"`
}

// Output writes every entry of every batch as one JSON document.
type Output struct {
	format string
	writer *lumberjack.Logger
	logger *slog.Logger

	mu     sync.Mutex // serializes writes and close
	closed bool

	entriesWritten atomic.Int64
	bytesWritten   atomic.Int64
	writeErrors    atomic.Int64
}

var _ performance.Listener = (*Output)(nil)

// NewOutput validates cfg, creates the parent directory and prepares the
// rotating writer. The file itself is opened on first write.
func NewOutput(cfg Config, logger *slog.Logger) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Output", "NewOutput", "create output directory")
	}

	return &Output{
		format: cfg.Format,
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		logger: logger.With("component", "file-output", "path", cfg.Path),
	}, nil
}

// Name identifies the output in reporter logs and metrics.
func (o *Output) Name() string {
	return "file"
}

// OnBatch appends the batch's entries to the file.
func (o *Output) OnBatch(ctx context.Context, batch performance.Batch) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Output", "OnBatch", "check context")
	}

	var buf bytes.Buffer
	for _, e := range batch.Entries {
		if err := o.encode(&buf, e); err != nil {
			o.writeErrors.Add(1)
			return errors.WrapInvalid(err, "Output", "OnBatch", fmt.Sprintf("encode %s entry %q", e.Type, e.Name))
		}
	}
	if batch.Dropped > 0 {
		rec := droppedRecord{Type: batch.Type, Dropped: batch.Dropped, BatchID: batch.ID}
		if err := o.encode(&buf, rec); err != nil {
			o.writeErrors.Add(1)
			return errors.WrapInvalid(err, "Output", "OnBatch", "encode drop record")
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.WrapFatal(errors.ErrSinkClosed, "Output", "OnBatch", "write batch")
	}

	n, err := o.writer.Write(buf.Bytes())
	o.bytesWritten.Add(int64(n))
	if err != nil {
		o.writeErrors.Add(1)
		return errors.WrapTransient(err, "Output", "OnBatch", "write batch")
	}
	o.entriesWritten.Add(int64(len(batch.Entries)))

	o.logger.Debug("batch written",
		"batch_id", batch.ID,
		"type", batch.Type,
		"entries", len(batch.Entries),
		"bytes", n)
	return nil
}

func (o *Output) encode(buf *bytes.Buffer, v any) error {
	var (
		data []byte
		err  error
	)
	if o.format == "json" {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// Rotate closes the current file and starts a new one.
func (o *Output) Rotate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.writer.Rotate(); err != nil {
		return errors.WrapTransient(err, "Output", "Rotate", "rotate file")
	}
	return nil
}

// Close closes the file. Further batches fail with ErrSinkClosed.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.writer.Close(); err != nil {
		return errors.WrapTransient(err, "Output", "Close", "close file")
	}
	return nil
}

// Stats is a snapshot of output counters.
type Stats struct {
	EntriesWritten int64 `json:"entries_written"`
	BytesWritten   int64 `json:"bytes_written"`
	WriteErrors    int64 `json:"write_errors"`
}

// Stats returns current counters.
func (o *Output) Stats() Stats {
	return Stats{
		EntriesWritten: o.entriesWritten.Load(),
		BytesWritten:   o.bytesWritten.Load(),
		WriteErrors:    o.writeErrors.Load(),
	}
}
