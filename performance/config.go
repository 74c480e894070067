package performance

import (
	"fmt"
	"time"

	"github.com/c360/perfstreams/errors"
)

// Config sizes the reporter's buffers and controls flushing.
type Config struct {
	MarkBufferSize     int
	MeasureBufferSize  int
	EventBufferSize    int
	LongTaskBufferSize int

	// EventDurationThreshold is the minimum duration for an event timing to
	// be buffered. Shorter events are only counted.
	EventDurationThreshold time.Duration

	// LongTaskThreshold is the minimum duration for a long task to be buffered.
	LongTaskThreshold time.Duration

	FlushWorkers   int
	FlushQueueSize int

	// FlushInterval is the period of the background sweep that flushes any
	// buffer a readiness edge missed. Zero disables the sweep.
	FlushInterval time.Duration

	// DropLogInterval bounds how often buffer drops are logged at warn level.
	DropLogInterval time.Duration
}

// DefaultConfig returns the default reporter configuration.
func DefaultConfig() Config {
	return Config{
		MarkBufferSize:         1024,
		MeasureBufferSize:      1024,
		EventBufferSize:        150,
		LongTaskBufferSize:     200,
		EventDurationThreshold: 104 * time.Millisecond,
		LongTaskThreshold:      50 * time.Millisecond,
		FlushWorkers:           2,
		FlushQueueSize:         16,
		FlushInterval:          time.Second,
		DropLogInterval:        10 * time.Second,
	}
}

// BufferSize returns the configured capacity for t.
func (c Config) BufferSize(t EntryType) int {
	switch t {
	case EntryTypeMark:
		return c.MarkBufferSize
	case EntryTypeMeasure:
		return c.MeasureBufferSize
	case EntryTypeEvent:
		return c.EventBufferSize
	case EntryTypeLongTask:
		return c.LongTaskBufferSize
	default:
		return 0
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	for _, t := range EntryTypes() {
		if c.BufferSize(t) <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s buffer size must be positive, got %d", errors.ErrInvalidConfig, t, c.BufferSize(t)),
				"Config", "Validate", "check buffer sizes")
		}
	}
	if c.EventDurationThreshold < 0 || c.LongTaskThreshold < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: thresholds cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check thresholds")
	}
	if c.FlushWorkers <= 0 || c.FlushQueueSize <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: flush workers and queue size must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check flush pool")
	}
	if c.FlushInterval < 0 || c.DropLogInterval < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: intervals cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check intervals")
	}
	return nil
}
