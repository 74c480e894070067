package worker

import (
	"fmt"

	"github.com/c360/perfstreams/errors"
)

// Pool errors wrap the shared sentinels so errors.IsTransient and friends
// classify them: a full queue or a slow stop is worth retrying, misuse is not.
var (
	ErrPoolNotStarted     = fmt.Errorf("worker pool: %w", errors.ErrNotStarted)
	ErrPoolStopped        = fmt.Errorf("worker pool: %w", errors.ErrAlreadyStopped)
	ErrPoolAlreadyStarted = fmt.Errorf("worker pool: %w", errors.ErrAlreadyStarted)
	ErrQueueFull          = fmt.Errorf("worker pool: %w", errors.ErrQueueFull)
	ErrStopTimeout        = fmt.Errorf("worker pool: timeout waiting for workers to stop")
	ErrProcessorPanic     = fmt.Errorf("worker pool: processor panicked")
	ErrNilProcessor       = fmt.Errorf("worker pool: %w: nil processor", errors.ErrInvalidConfig)
)
