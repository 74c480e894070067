package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity.
type Statistics struct {
	// Atomic counters for thread-safe updates
	adds          int64
	overwrites    int64
	drops         int64
	consumes      int64
	consumedItems int64
	clears        int64

	// Protected by mutex
	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Add records one Add and its outcome.
func (s *Statistics) Add(status PushStatus) {
	atomic.AddInt64(&s.adds, 1)
	switch status {
	case PushOverwrite:
		atomic.AddInt64(&s.overwrites, 1)
	case PushDrop:
		atomic.AddInt64(&s.drops, 1)
	}
}

// Consume records a Consume call that claimed n entries.
func (s *Statistics) Consume(n int) {
	atomic.AddInt64(&s.consumes, 1)
	atomic.AddInt64(&s.consumedItems, int64(n))
}

// Clear records a Clear or ClearFunc call.
func (s *Statistics) Clear() {
	atomic.AddInt64(&s.clears, 1)
}

// UpdateSize updates the current buffer size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Adds returns the total number of Add calls.
func (s *Statistics) Adds() int64 {
	return atomic.LoadInt64(&s.adds)
}

// Overwrites returns how many Adds evicted a consumed entry.
func (s *Statistics) Overwrites() int64 {
	return atomic.LoadInt64(&s.overwrites)
}

// Drops returns how many Adds evicted an unconsumed entry.
func (s *Statistics) Drops() int64 {
	return atomic.LoadInt64(&s.drops)
}

// Consumes returns the number of Consume calls.
func (s *Statistics) Consumes() int64 {
	return atomic.LoadInt64(&s.consumes)
}

// ConsumedItems returns the total number of entries handed out by Consume.
func (s *Statistics) ConsumedItems() int64 {
	return atomic.LoadInt64(&s.consumedItems)
}

// Clears returns the number of clear operations.
func (s *Statistics) Clears() int64 {
	return atomic.LoadInt64(&s.clears)
}

// CurrentSize returns the current number of retrievable entries.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest size the buffer has reached.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns the average number of adds per second.
func (s *Statistics) Throughput() float64 {
	elapsed := s.Uptime()
	if elapsed == 0 {
		return 0.0
	}
	return float64(s.Adds()) / elapsed.Seconds()
}

// DropRate returns the fraction of adds that dropped an unconsumed entry (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	adds := s.Adds()
	if adds == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(adds)
}

// OverwriteRate returns the fraction of adds that recycled a consumed entry (0.0 to 1.0).
func (s *Statistics) OverwriteRate() float64 {
	adds := s.Adds()
	if adds == 0 {
		return 0.0
	}
	return float64(s.Overwrites()) / float64(adds)
}

// Utilization returns the current size relative to capacity (0.0 to 1.0).
func (s *Statistics) Utilization(capacity int64) float64 {
	if capacity == 0 {
		return 0.0
	}
	return float64(s.CurrentSize()) / float64(capacity)
}

// Uptime returns how long the statistics have been collected.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset resets all statistics to zero.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.adds, 0)
	atomic.StoreInt64(&s.overwrites, 0)
	atomic.StoreInt64(&s.drops, 0)
	atomic.StoreInt64(&s.consumes, 0)
	atomic.StoreInt64(&s.consumedItems, 0)
	atomic.StoreInt64(&s.clears, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}

// StatsSummary is a point-in-time snapshot of Statistics.
type StatsSummary struct {
	Adds          int64         `json:"adds"`
	Overwrites    int64         `json:"overwrites"`
	Drops         int64         `json:"drops"`
	Consumes      int64         `json:"consumes"`
	ConsumedItems int64         `json:"consumed_items"`
	Clears        int64         `json:"clears"`
	CurrentSize   int64         `json:"current_size"`
	MaxSize       int64         `json:"max_size"`
	Throughput    float64       `json:"throughput"`
	DropRate      float64       `json:"drop_rate"`
	OverwriteRate float64       `json:"overwrite_rate"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Adds:          s.Adds(),
		Overwrites:    s.Overwrites(),
		Drops:         s.Drops(),
		Consumes:      s.Consumes(),
		ConsumedItems: s.ConsumedItems(),
		Clears:        s.Clears(),
		CurrentSize:   s.CurrentSize(),
		MaxSize:       s.MaxSize(),
		Throughput:    s.Throughput(),
		DropRate:      s.DropRate(),
		OverwriteRate: s.OverwriteRate(),
		Uptime:        s.Uptime(),
	}
}
