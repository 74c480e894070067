package buffer

// KeyFunc extracts the lookup key of an entry.
type KeyFunc[T any] func(item T) string

// KeyedBuffer is a ConsumableBuffer that also remembers the most recent
// entry for every key, e.g. the latest mark with a given name.
//
// The index holds pointers into the buffer's slots. Before each Add the slot
// returned by NextOverwriteCandidate is unindexed, so the index never points
// at a recycled slot. Like ConsumableBuffer, it is not safe for concurrent use.
type KeyedBuffer[T any] struct {
	*ConsumableBuffer[T]
	key   KeyFunc[T]
	index map[string]*T
}

// NewKeyedBuffer creates a keyed buffer of the given capacity.
// It panics if key is nil.
func NewKeyedBuffer[T any](maxSize int, key KeyFunc[T]) *KeyedBuffer[T] {
	if key == nil {
		panic("buffer: nil KeyFunc")
	}
	return &KeyedBuffer[T]{
		ConsumableBuffer: NewConsumableBuffer[T](maxSize),
		key:              key,
		index:            make(map[string]*T),
	}
}

// Add stores item and makes it the most recent entry for its key.
func (b *KeyedBuffer[T]) Add(item T) PushStatus {
	if victim := b.NextOverwriteCandidate(); victim != nil {
		k := b.key(*victim)
		if b.index[k] == victim {
			delete(b.index, k)
		}
	}

	status := b.ConsumableBuffer.Add(item)
	b.index[b.key(item)] = b.Back()
	return status
}

// FindLast returns the most recent retrievable entry with the given key.
func (b *KeyedBuffer[T]) FindLast(key string) (*T, bool) {
	item, ok := b.index[key]
	return item, ok
}

// Clear discards every entry and empties the index.
func (b *KeyedBuffer[T]) Clear() {
	b.ConsumableBuffer.Clear()
	clear(b.index)
}

// ClearFunc discards the entries matching pred and rebuilds the index,
// since compaction moves the survivors to new slots.
func (b *KeyedBuffer[T]) ClearFunc(pred func(T) bool) int {
	removed := b.ConsumableBuffer.ClearFunc(pred)
	if removed == 0 {
		return 0
	}

	clear(b.index)
	for i := 0; i < b.Len(); i++ {
		item := b.At(i)
		b.index[b.key(*item)] = item
	}
	return removed
}

// Keys returns the number of distinct indexed keys.
func (b *KeyedBuffer[T]) Keys() int {
	return len(b.index)
}
