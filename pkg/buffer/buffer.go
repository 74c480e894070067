// Package buffer provides bounded, consumable circular buffers for telemetry
// entries, a name-indexed variant, and a synchronized wrapper that adds
// statistics, optional Prometheus metrics and drop accounting.
//
// This package offers:
//   - ConsumableBuffer: fixed-capacity store with append-with-overwrite and consume semantics
//   - KeyedBuffer: ConsumableBuffer plus a most-recent-entry-by-key index
//   - SyncBuffer: mutex-guarded wrapper around either, for use from many goroutines
//
// ConsumableBuffer and KeyedBuffer are single-threaded. SyncBuffer is the
// layer that serializes access.
package buffer

// PushStatus reports what an Add had to evict.
type PushStatus int

const (
	// PushOK means the entry was appended without evicting anything.
	PushOK PushStatus = iota

	// PushOverwrite means an already consumed entry was evicted.
	PushOverwrite

	// PushDrop means an entry that had never been consumed was evicted.
	// Callers are expected to count these and report them downstream.
	PushDrop
)

// String returns a human-readable representation of the push status.
func (s PushStatus) String() string {
	switch s {
	case PushOK:
		return "ok"
	case PushOverwrite:
		return "overwrite"
	case PushDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Store is the method set shared by ConsumableBuffer and KeyedBuffer.
type Store[T any] interface {
	// Add stores an item, evicting the oldest entry when full.
	Add(item T) PushStatus

	// Consume returns the entries added since the last Consume.
	Consume() []T

	// ConsumeInto appends the unconsumed entries to dst.
	ConsumeInto(dst []T) []T

	// Entries returns every retrievable entry, oldest first.
	Entries() []T

	// EntriesFunc returns the retrievable entries matching pred, oldest first.
	EntriesFunc(pred func(T) bool) []T

	// Clear discards every entry.
	Clear()

	// ClearFunc discards the entries matching pred and returns how many were removed.
	ClearFunc(pred func(T) bool) int

	// Len returns the number of retrievable entries.
	Len() int

	// Cap returns the fixed capacity.
	Cap() int

	// NumToConsume returns the number of unconsumed entries.
	NumToConsume() int

	// NextOverwriteCandidate returns the slot the next Add would recycle, or nil.
	NextOverwriteCandidate() *T
}

// Indexed is implemented by stores that can look up the most recent entry for a key.
type Indexed[T any] interface {
	FindLast(key string) (*T, bool)
}

var (
	_ Store[int]   = (*ConsumableBuffer[int])(nil)
	_ Store[int]   = (*KeyedBuffer[int])(nil)
	_ Indexed[int] = (*KeyedBuffer[int])(nil)
)
