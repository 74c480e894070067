package performance

import "context"

// Listener receives flushed batches. OnBatch may be called concurrently for
// different entry types, but batches of one type arrive in order.
type Listener interface {
	OnBatch(ctx context.Context, batch Batch) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, batch Batch) error

// OnBatch calls f.
func (f ListenerFunc) OnBatch(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// Named is implemented by listeners that want a stable name in logs and metrics.
type Named interface {
	Name() string
}

type subscription struct {
	id       uint64
	name     string
	listener Listener
	types    [numEntryTypes]bool
}

func (s *subscription) wants(t EntryType) bool {
	return s.types[t]
}
