package buffer

import "fmt"

// DefaultMaxSize is the capacity used when a non-positive size is requested.
const DefaultMaxSize = 1024

// ConsumableBuffer is a fixed-capacity circular store that keeps the most
// recent entries and tracks which of them have not been consumed yet.
//
// Entries are retrievable (Entries, At) until a later Add recycles their slot.
// Consume claims only the entries added since the previous Consume; it never
// removes anything from the retrievable history.
//
// The slot slice is allocated once in NewConsumableBuffer and never grows, so
// pointers returned by At, Back and NextOverwriteCandidate remain valid across
// Add calls. ConsumableBuffer is not safe for concurrent use; callers must
// serialize access (see SyncBuffer).
type ConsumableBuffer[T any] struct {
	entries []T
	maxSize int
	size    int

	// position is the slot of the oldest retrievable entry.
	position int
	// cursorStart and cursorEnd bound the unconsumed window [start, end),
	// both as slot indices. cursorEnd is always the next write slot.
	cursorStart  int
	cursorEnd    int
	numToConsume int
}

// NewConsumableBuffer creates a buffer holding at most maxSize entries.
// A non-positive maxSize selects DefaultMaxSize.
func NewConsumableBuffer[T any](maxSize int) *ConsumableBuffer[T] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &ConsumableBuffer[T]{
		entries: make([]T, maxSize),
		maxSize: maxSize,
	}
}

// Add stores item, evicting the oldest entry once the buffer is full.
//
// The returned status tells the caller what had to give way: nothing
// (PushOK), an entry that was already consumed (PushOverwrite) or an entry
// nobody had consumed yet (PushDrop).
func (b *ConsumableBuffer[T]) Add(item T) PushStatus {
	if b.size < b.maxSize {
		b.entries[b.cursorEnd] = item
		b.size++
		b.cursorEnd = b.wrap(b.cursorEnd + 1)
		b.numToConsume++
		return PushOK
	}

	b.entries[b.position] = item
	b.position = b.wrap(b.position + 1)
	b.cursorEnd = b.position

	if b.numToConsume == b.maxSize {
		// The oldest unconsumed entry was just destroyed and the new one
		// takes its place in the count.
		b.cursorStart = b.position
		return PushDrop
	}

	b.numToConsume++
	return PushOverwrite
}

// NextOverwriteCandidate returns the slot the next Add would recycle, or nil
// while the buffer is still growing.
func (b *ConsumableBuffer[T]) NextOverwriteCandidate() *T {
	if b.size < b.maxSize {
		return nil
	}
	return &b.entries[b.position]
}

// At returns the idx-th retrievable entry, oldest first.
// It panics when idx is out of range.
func (b *ConsumableBuffer[T]) At(idx int) *T {
	if idx < 0 || idx >= b.size {
		panic(fmt.Sprintf("buffer: index %d out of range [0:%d]", idx, b.size))
	}
	return &b.entries[b.wrap(b.position+idx)]
}

// Back returns the most recently added entry. It panics on an empty buffer.
func (b *ConsumableBuffer[T]) Back() *T {
	if b.size == 0 {
		panic("buffer: Back called on empty buffer")
	}
	return &b.entries[b.wrap(b.cursorEnd-1+b.maxSize)]
}

// Len returns the number of retrievable entries.
func (b *ConsumableBuffer[T]) Len() int {
	return b.size
}

// Cap returns the fixed capacity.
func (b *ConsumableBuffer[T]) Cap() int {
	return b.maxSize
}

// NumToConsume returns how many entries have not been claimed by Consume.
func (b *ConsumableBuffer[T]) NumToConsume() int {
	return b.numToConsume
}

// Clear discards every entry and resets all cursors. Only the live slots are
// zeroed; slots outside the window already hold the zero value.
func (b *ConsumableBuffer[T]) Clear() {
	var zero T
	for i := 0; i < b.size; i++ {
		b.entries[b.wrap(b.position+i)] = zero
	}
	b.size = 0
	b.position = 0
	b.cursorStart = 0
	b.cursorEnd = 0
	b.numToConsume = 0
}

// ClearFunc removes every entry for which pred returns true and reports how
// many were removed.
//
// Survivors keep their relative order and their consumption state: an entry
// that was unconsumed before the call is still unconsumed afterwards. The
// survivors are compacted to the front of the slot slice, so position is 0
// afterwards.
func (b *ConsumableBuffer[T]) ClearFunc(pred func(T) bool) int {
	if b.size == 0 {
		return 0
	}

	firstUnconsumed := b.size - b.numToConsume
	kept := make([]T, 0, b.size)
	keptUnconsumed := 0
	for i := 0; i < b.size; i++ {
		item := b.entries[b.wrap(b.position+i)]
		if pred(item) {
			continue
		}
		kept = append(kept, item)
		if i >= firstUnconsumed {
			keptUnconsumed++
		}
	}

	removed := b.size - len(kept)
	if removed == 0 {
		return 0
	}

	var zero T
	n := copy(b.entries, kept)
	for i := n; i < b.maxSize; i++ {
		b.entries[i] = zero
	}

	b.size = n
	b.position = 0
	b.cursorEnd = b.wrap(n)
	b.numToConsume = keptUnconsumed
	b.cursorStart = b.wrap(b.cursorEnd - keptUnconsumed + b.maxSize)
	return removed
}

// Entries returns a copy of every retrievable entry, oldest first.
func (b *ConsumableBuffer[T]) Entries() []T {
	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.entries[b.wrap(b.position+i)])
	}
	return out
}

// EntriesFunc returns a copy of the retrievable entries for which pred
// returns true, oldest first.
func (b *ConsumableBuffer[T]) EntriesFunc(pred func(T) bool) []T {
	var out []T
	for i := 0; i < b.size; i++ {
		item := b.entries[b.wrap(b.position+i)]
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Consume returns the entries added since the previous Consume and marks
// them consumed. They stay retrievable through Entries and At.
func (b *ConsumableBuffer[T]) Consume() []T {
	return b.ConsumeInto(make([]T, 0, b.numToConsume))
}

// ConsumeInto appends the unconsumed entries to dst, marks them consumed and
// returns the extended slice.
func (b *ConsumableBuffer[T]) ConsumeInto(dst []T) []T {
	for i := 0; i < b.numToConsume; i++ {
		dst = append(dst, b.entries[b.wrap(b.cursorStart+i)])
	}
	b.cursorStart = b.cursorEnd
	b.numToConsume = 0
	return dst
}

func (b *ConsumableBuffer[T]) wrap(i int) int {
	return i % b.maxSize
}
