package buffer

import (
	"github.com/c360/perfstreams/metric"
)

// Option configures a SyncBuffer using the functional options pattern.
type Option[T any] func(*syncOptions[T])

// DropCallback receives a copy of an entry destroyed before it was consumed.
type DropCallback[T any] func(item T)

// ReadyCallback is invoked when a buffer goes from nothing to consume to
// something to consume.
type ReadyCallback func()

// syncOptions holds internal configuration for SyncBuffer instances.
// Stats are ALWAYS collected; metrics are optional.
type syncOptions[T any] struct {
	dropCallback  DropCallback[T]
	readyCallback ReadyCallback

	// metricsReg is optional - if provided, buffer stats are also exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsComponent is used as the component label for Prometheus metrics
	metricsComponent string
}

// WithMetrics enables Prometheus metrics export for buffer activity.
// The option is ignored when registry is nil or component is empty.
func WithMetrics[T any](registry *metric.MetricsRegistry, component string) Option[T] {
	return func(opts *syncOptions[T]) {
		if registry != nil && component != "" {
			opts.metricsReg = registry
			opts.metricsComponent = component
		}
	}
}

// WithDropCallback sets a callback invoked, outside the lock, with every
// entry lost to PushDrop.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *syncOptions[T]) {
		opts.dropCallback = callback
	}
}

// WithReadyCallback sets a callback invoked, outside the lock, whenever the
// number of unconsumed entries goes from 0 to 1. It is edge triggered: further
// adds do not call it again until the buffer has been consumed or cleared.
func WithReadyCallback[T any](callback ReadyCallback) Option[T] {
	return func(opts *syncOptions[T]) {
		opts.readyCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *syncOptions[T] {
	opts := &syncOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
