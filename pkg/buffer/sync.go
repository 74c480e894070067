package buffer

import (
	"sync"

	"github.com/c360/perfstreams/errors"
)

// SyncBuffer serializes access to a Store with a mutex and layers
// observability and drop accounting on top of it.
//
// The wrapped Store must not be used directly once handed to a SyncBuffer.
// Callbacks run after the lock is released, so they may call back into the
// SyncBuffer.
type SyncBuffer[T any] struct {
	mu           sync.Mutex
	store        Store[T]
	pendingDrops uint64

	stats   *Statistics    // ALWAYS initialized for observability
	metrics *bufferMetrics // Optional Prometheus metrics
	opts    *syncOptions[T]
}

// NewSyncBuffer wraps store. Returns an error if metrics registration fails
// when metrics are requested.
func NewSyncBuffer[T any](store Store[T], options ...Option[T]) (*SyncBuffer[T], error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "SyncBuffer", "NewSyncBuffer", "nil store")
	}

	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsComponent)
		if err != nil {
			return nil, errors.WrapTransient(err, "SyncBuffer", "NewSyncBuffer", "metrics registration")
		}
	}

	return &SyncBuffer[T]{
		store:   store,
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Add stores item and returns the push status reported by the store.
func (b *SyncBuffer[T]) Add(item T) PushStatus {
	var (
		victim     T
		haveVictim bool
	)

	b.mu.Lock()
	wasIdle := b.store.NumToConsume() == 0
	if b.opts.dropCallback != nil && b.store.NumToConsume() == b.store.Cap() {
		if slot := b.store.NextOverwriteCandidate(); slot != nil {
			victim, haveVictim = *slot, true
		}
	}

	status := b.store.Add(item)
	if status == PushDrop {
		b.pendingDrops++
	}
	ready := wasIdle && b.store.NumToConsume() > 0

	b.stats.Add(status)
	b.stats.UpdateSize(int64(b.store.Len()))
	if b.metrics != nil {
		b.metrics.recordPush(status)
		b.updateGauges()
	}
	b.mu.Unlock()

	if status == PushDrop && haveVictim {
		b.opts.dropCallback(victim)
	}
	if ready && b.opts.readyCallback != nil {
		b.opts.readyCallback()
	}
	return status
}

// Consume returns the unconsumed entries and marks them consumed.
func (b *SyncBuffer[T]) Consume() []T {
	items, _ := b.ConsumeBatch()
	return items
}

// ConsumeBatch returns the unconsumed entries together with the number of
// entries dropped since the previous ConsumeBatch, and resets both.
func (b *SyncBuffer[T]) ConsumeBatch() ([]T, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.store.Consume()
	dropped := b.pendingDrops
	b.pendingDrops = 0

	b.stats.Consume(len(items))
	if b.metrics != nil {
		b.metrics.recordConsume(len(items))
		b.updateGauges()
	}
	return items, dropped
}

// Entries returns every retrievable entry, oldest first.
func (b *SyncBuffer[T]) Entries() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Entries()
}

// EntriesFunc returns the retrievable entries matching pred, oldest first.
// pred runs under the buffer lock and must not call back into b.
func (b *SyncBuffer[T]) EntriesFunc(pred func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.EntriesFunc(pred)
}

// Lookup returns a copy of the most recent entry for key. It reports false
// when nothing matches or the wrapped store is not indexed.
func (b *SyncBuffer[T]) Lookup(key string) (T, bool) {
	var zero T

	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.store.(Indexed[T])
	if !ok {
		return zero, false
	}
	item, found := idx.FindLast(key)
	if !found {
		return zero, false
	}
	return *item, true
}

// Clear discards every entry. Pending drop counts are kept.
func (b *SyncBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store.Clear()
	b.recordClear()
}

// ClearFunc discards the entries matching pred and returns how many were
// removed. pred runs under the buffer lock.
func (b *SyncBuffer[T]) ClearFunc(pred func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.store.ClearFunc(pred)
	b.recordClear()
	return removed
}

// Len returns the number of retrievable entries.
func (b *SyncBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Len()
}

// Cap returns the capacity of the wrapped store.
func (b *SyncBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Cap()
}

// NumToConsume returns the number of unconsumed entries.
func (b *SyncBuffer[T]) NumToConsume() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.NumToConsume()
}

// PendingDrops returns the number of entries dropped since the last ConsumeBatch.
func (b *SyncBuffer[T]) PendingDrops() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingDrops
}

// Stats returns buffer statistics (always available for observability).
func (b *SyncBuffer[T]) Stats() *Statistics {
	return b.stats
}

func (b *SyncBuffer[T]) recordClear() {
	b.stats.Clear()
	b.stats.UpdateSize(int64(b.store.Len()))
	if b.metrics != nil {
		b.metrics.recordClear()
		b.updateGauges()
	}
}

// updateGauges must be called with b.mu held.
func (b *SyncBuffer[T]) updateGauges() {
	b.metrics.updateState(b.store.Len(), b.store.NumToConsume(), b.store.Cap(), b.pendingDrops)
}
