package performance

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/pkg/buffer"
	"github.com/c360/perfstreams/pkg/worker"
)

// longTaskName is the name given to every long task entry.
const longTaskName = "self"

// Reporter owns one buffer per entry type, records entries into them and
// flushes newly recorded entries to subscribed listeners.
//
// A Reporter is safe for concurrent use. Construct one per runtime and pass
// it to producers and sinks; there is no package-level instance.
type Reporter struct {
	cfg      Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	origin   time.Time
	now      func() time.Time

	buffers [numEntryTypes]*buffer.SyncBuffer[Entry]
	flushMu [numEntryTypes]sync.Mutex

	countsMu    sync.Mutex
	eventCounts map[string]uint64

	listenersMu sync.RWMutex
	listeners   []*subscription
	nextSubID   uint64

	pool            *worker.Pool[EntryType]
	pending         [numEntryTypes]atomic.Bool
	dropLimiter     *rate.Limiter
	suppressedDrops atomic.Uint64

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	sweepDone   chan struct{}
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithLogger sets the reporter's logger.
func WithLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsRegistry exports buffer, pool and reporter metrics to registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) ReporterOption {
	return func(r *Reporter) {
		r.registry = registry
	}
}

// WithClock replaces time.Now. The time origin is taken from the clock at
// construction unless WithTimeOrigin is also given.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTimeOrigin sets the instant entry times are measured from.
func WithTimeOrigin(origin time.Time) ReporterOption {
	return func(r *Reporter) {
		r.origin = origin
	}
}

// NewReporter validates cfg and builds a reporter. Call Start to enable
// background flushing.
func NewReporter(cfg Config, opts ...ReporterOption) (*Reporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Reporter{
		cfg:         cfg,
		logger:      slog.Default(),
		now:         time.Now,
		eventCounts: make(map[string]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.origin.IsZero() {
		r.origin = r.now()
	}
	r.logger = r.logger.With("component", "reporter")
	if r.registry != nil {
		r.metrics = r.registry.CoreMetrics()
	}

	limit := rate.Inf
	if cfg.DropLogInterval > 0 {
		limit = rate.Every(cfg.DropLogInterval)
	}
	r.dropLimiter = rate.NewLimiter(limit, 1)

	for _, t := range EntryTypes() {
		sb, err := r.newBuffer(t)
		if err != nil {
			return nil, errors.WrapFatal(err, "Reporter", "NewReporter", fmt.Sprintf("create %s buffer", t))
		}
		r.buffers[t] = sb
	}

	pool, err := worker.NewPool(cfg.FlushWorkers, cfg.FlushQueueSize,
		func(ctx context.Context, t EntryType) error {
			err := r.flushType(ctx, t, "ready")
			r.resubmitPending()
			return err
		},
		worker.WithName[EntryType]("flush"),
		worker.WithLogger[EntryType](r.logger),
		worker.WithMetricsRegistry[EntryType](r.registry),
	)
	if err != nil {
		return nil, errors.WrapFatal(err, "Reporter", "NewReporter", "create flush pool")
	}
	r.pool = pool

	return r, nil
}

func (r *Reporter) newBuffer(t EntryType) (*buffer.SyncBuffer[Entry], error) {
	size := r.cfg.BufferSize(t)

	var store buffer.Store[Entry]
	switch t {
	case EntryTypeMark, EntryTypeMeasure:
		store = buffer.NewKeyedBuffer(size, func(e Entry) string { return e.Name })
	default:
		store = buffer.NewConsumableBuffer[Entry](size)
	}

	return buffer.NewSyncBuffer(store,
		buffer.WithMetrics[Entry](r.registry, t.String()),
		buffer.WithDropCallback[Entry](r.onDrop),
		buffer.WithReadyCallback[Entry](func() { r.scheduleFlush(t) }),
	)
}

// Origin returns the instant entry times are measured from.
func (r *Reporter) Origin() time.Time {
	return r.origin
}

// Now returns the current time as an offset from the time origin.
func (r *Reporter) Now() time.Duration {
	return r.now().Sub(r.origin)
}

// Mark records a mark named name at the current time.
func (r *Reporter) Mark(name string) (Entry, error) {
	return r.MarkAt(name, r.Now(), nil)
}

// MarkAt records a mark with an explicit start time and optional detail.
func (r *Reporter) MarkAt(name string, start time.Duration, detail []byte) (Entry, error) {
	if name == "" {
		return Entry{}, errors.WrapInvalid(errors.ErrInvalidData, "Reporter", "MarkAt", "mark name is empty")
	}
	if start < 0 {
		return Entry{}, errors.WrapInvalid(errors.ErrInvalidTiming, "Reporter", "MarkAt",
			fmt.Sprintf("negative start time %s", start))
	}

	e := Entry{Name: name, Type: EntryTypeMark, StartTime: start, Detail: detail}
	r.record(e)
	return e, nil
}

// Measure records a measure spanning the interval described by opts. Named
// marks resolve to their most recent occurrence.
func (r *Reporter) Measure(name string, opts MeasureOptions) (Entry, error) {
	if name == "" {
		return Entry{}, errors.WrapInvalid(errors.ErrInvalidData, "Reporter", "Measure", "measure name is empty")
	}

	start := opts.Start
	if opts.StartMark != "" {
		m, ok := r.buffers[EntryTypeMark].Lookup(opts.StartMark)
		if !ok {
			return Entry{}, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrMarkNotFound, opts.StartMark),
				"Reporter", "Measure", "resolve start mark")
		}
		start = m.StartTime
	}

	var end time.Duration
	switch {
	case opts.EndMark != "":
		m, ok := r.buffers[EntryTypeMark].Lookup(opts.EndMark)
		if !ok {
			return Entry{}, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrMarkNotFound, opts.EndMark),
				"Reporter", "Measure", "resolve end mark")
		}
		end = m.StartTime
	case opts.End != 0:
		end = opts.End
	case opts.Duration != 0:
		end = start + opts.Duration
	default:
		end = r.Now()
	}

	if start < 0 || end < start {
		return Entry{}, errors.WrapInvalid(
			fmt.Errorf("%w: start %s end %s", errors.ErrInvalidTiming, start, end),
			"Reporter", "Measure", "check interval")
	}

	e := Entry{
		Name:      name,
		Type:      EntryTypeMeasure,
		StartTime: start,
		Duration:  end - start,
		Detail:    opts.Detail,
	}
	r.record(e)
	return e, nil
}

// ReportEvent counts an event timing and buffers it when its duration
// reaches the event threshold. It reports whether the event was buffered.
func (r *Reporter) ReportEvent(ev EventTiming) (bool, error) {
	if ev.Name == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "Reporter", "ReportEvent", "event name is empty")
	}
	if ev.Duration < 0 || ev.StartTime < 0 {
		return false, errors.WrapInvalid(errors.ErrInvalidTiming, "Reporter", "ReportEvent", "negative event timing")
	}

	r.countsMu.Lock()
	r.eventCounts[ev.Name]++
	r.countsMu.Unlock()

	buffered := ev.Duration >= r.cfg.EventDurationThreshold
	if r.metrics != nil {
		r.metrics.RecordEventCounted(buffered)
	}
	if !buffered {
		return false, nil
	}

	r.record(Entry{
		Name:            ev.Name,
		Type:            EntryTypeEvent,
		StartTime:       ev.StartTime,
		Duration:        ev.Duration,
		ProcessingStart: ev.ProcessingStart,
		ProcessingEnd:   ev.ProcessingEnd,
		InteractionID:   ev.InteractionID,
	})
	return true, nil
}

// ReportLongTask buffers a long task when duration reaches the long task
// threshold. It reports whether the task was buffered.
func (r *Reporter) ReportLongTask(start, duration time.Duration) (bool, error) {
	if start < 0 || duration < 0 {
		return false, errors.WrapInvalid(errors.ErrInvalidTiming, "Reporter", "ReportLongTask", "negative long task timing")
	}
	if duration < r.cfg.LongTaskThreshold {
		return false, nil
	}

	r.record(Entry{
		Name:      longTaskName,
		Type:      EntryTypeLongTask,
		StartTime: start,
		Duration:  duration,
	})
	return true, nil
}

func (r *Reporter) record(e Entry) buffer.PushStatus {
	status := r.buffers[e.Type].Add(e)
	if r.metrics != nil {
		r.metrics.RecordEntry(e.Type.String(), status.String())
	}
	r.logger.Debug("entry recorded", "type", e.Type, "name", e.Name, "status", status)
	return status
}

// onDrop runs for every entry evicted before it was flushed.
func (r *Reporter) onDrop(e Entry) {
	if r.metrics != nil {
		r.metrics.RecordDrop(e.Type.String())
	}
	if !r.dropLimiter.Allow() {
		r.suppressedDrops.Add(1)
		return
	}
	r.logger.Warn("entry dropped before flush",
		"type", e.Type,
		"name", e.Name,
		"suppressed", r.suppressedDrops.Swap(0))
}

// Entries returns the retrievable entries of type t, oldest first. An empty
// name returns every name. Retrieval does not affect flushing.
func (r *Reporter) Entries(t EntryType, name string) ([]Entry, error) {
	if !t.Valid() {
		return nil, errors.WrapInvalid(errors.ErrUnknownEntryType, "Reporter", "Entries", fmt.Sprintf("type %d", int(t)))
	}
	if name == "" {
		return r.buffers[t].Entries(), nil
	}
	return r.buffers[t].EntriesFunc(func(e Entry) bool { return e.Name == name }), nil
}

// AllEntries returns the retrievable entries of every type ordered by start time.
func (r *Reporter) AllEntries() []Entry {
	var all []Entry
	for _, t := range EntryTypes() {
		all = append(all, r.buffers[t].Entries()...)
	}
	slices.SortStableFunc(all, func(a, b Entry) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return all
}

// ClearEntries removes entries of type t, all of them when name is empty,
// and returns how many were removed.
func (r *Reporter) ClearEntries(t EntryType, name string) (int, error) {
	if !t.Valid() {
		return 0, errors.WrapInvalid(errors.ErrUnknownEntryType, "Reporter", "ClearEntries", fmt.Sprintf("type %d", int(t)))
	}
	sb := r.buffers[t]
	if name == "" {
		n := sb.Len()
		sb.Clear()
		return n, nil
	}
	return sb.ClearFunc(func(e Entry) bool { return e.Name == name }), nil
}

// EventCounts returns a snapshot of how many event timings were reported per
// event name, buffered or not.
func (r *Reporter) EventCounts() map[string]uint64 {
	r.countsMu.Lock()
	defer r.countsMu.Unlock()
	return maps.Clone(r.eventCounts)
}

// BufferStats returns a statistics snapshot per entry type.
func (r *Reporter) BufferStats() map[EntryType]buffer.StatsSummary {
	out := make(map[EntryType]buffer.StatsSummary, numEntryTypes)
	for _, t := range EntryTypes() {
		out[t] = r.buffers[t].Stats().Summary()
	}
	return out
}

// Subscribe registers listener for the given entry types, or for all types
// when none are given. The returned function removes the subscription.
func (r *Reporter) Subscribe(listener Listener, types ...EntryType) (func(), error) {
	if listener == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Reporter", "Subscribe", "nil listener")
	}
	if len(types) == 0 {
		types = EntryTypes()
	}

	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	r.nextSubID++
	sub := &subscription{id: r.nextSubID, listener: listener}
	for _, t := range types {
		if !t.Valid() {
			return nil, errors.WrapInvalid(errors.ErrUnknownEntryType, "Reporter", "Subscribe", fmt.Sprintf("type %d", int(t)))
		}
		sub.types[t] = true
	}
	if n, ok := listener.(Named); ok {
		sub.name = n.Name()
	} else {
		sub.name = fmt.Sprintf("listener-%d", sub.id)
	}
	r.listeners = append(r.listeners, sub)

	return func() { r.unsubscribe(sub.id) }, nil
}

func (r *Reporter) unsubscribe(id uint64) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = slices.DeleteFunc(r.listeners, func(s *subscription) bool { return s.id == id })
}

// Start launches the flush workers and the periodic sweep. Buffers that
// filled up before Start are flushed right away.
func (r *Reporter) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	if r.stopped {
		r.lifecycleMu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Reporter", "Start", "start reporter")
	}
	if r.started {
		r.lifecycleMu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Reporter", "Start", "start reporter")
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := r.pool.Start(ctx); err != nil {
		r.lifecycleMu.Unlock()
		cancel()
		return errors.WrapFatal(err, "Reporter", "Start", "start flush pool")
	}
	r.cancel = cancel
	r.started = true
	r.sweepDone = make(chan struct{})
	go r.sweep(ctx, r.sweepDone)
	r.lifecycleMu.Unlock()

	for _, t := range EntryTypes() {
		if r.buffers[t].NumToConsume() > 0 {
			r.scheduleFlush(t)
		}
	}
	r.logger.Info("reporter started", "flush_workers", r.cfg.FlushWorkers, "flush_interval", r.cfg.FlushInterval)
	return nil
}

// Stop stops background flushing and performs a final synchronous flush
// bounded by timeout.
func (r *Reporter) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	if !r.started || r.stopped {
		r.lifecycleMu.Unlock()
		return nil
	}
	r.stopped = true
	r.lifecycleMu.Unlock()

	var errs []error
	if err := r.pool.Stop(timeout); err != nil {
		errs = append(errs, errors.WrapTransient(err, "Reporter", "Stop", "stop flush pool"))
	}
	r.cancel()
	<-r.sweepDone

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.flushAll(ctx, "shutdown"); err != nil {
		errs = append(errs, err)
	}

	r.logger.Info("reporter stopped")
	return stderrors.Join(errs...)
}

// Flush synchronously delivers every unconsumed entry to the listeners.
func (r *Reporter) Flush(ctx context.Context) error {
	return r.flushAll(ctx, "manual")
}

func (r *Reporter) flushAll(ctx context.Context, trigger string) error {
	var errs []error
	for _, t := range EntryTypes() {
		if err := r.flushType(ctx, t, trigger); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// scheduleFlush hands a readiness edge to the flush pool. A rejected submit
// marks t pending; the worker that frees a queue slot resubmits it. The
// buffer stays non-empty meanwhile, so no further edge would fire for it.
func (r *Reporter) scheduleFlush(t EntryType) {
	r.lifecycleMu.Lock()
	running := r.started && !r.stopped
	r.lifecycleMu.Unlock()
	if !running {
		return
	}

	if err := r.pool.Submit(t); err != nil {
		r.logger.Debug("flush queue full, marking pending", "type", t, "error", err)
		r.pending[t].Store(true)
		// the queue may have drained between Submit and Store
		r.resubmitPending()
	}
}

// resubmitPending retries every pending type. A type that is rejected again
// stays pending; the queue is full, so a queued flush will retry it.
func (r *Reporter) resubmitPending() {
	for _, t := range EntryTypes() {
		if !r.pending[t].CompareAndSwap(true, false) {
			continue
		}
		if err := r.pool.Submit(t); err != nil {
			if stderrors.Is(err, worker.ErrQueueFull) {
				r.pending[t].Store(true)
			}
			return
		}
	}
}

func (r *Reporter) sweep(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if r.cfg.FlushInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range EntryTypes() {
				if r.buffers[t].NumToConsume() == 0 {
					continue
				}
				if err := r.flushType(ctx, t, "sweep"); err != nil {
					r.logger.Debug("sweep flush failed", "type", t, "error", err)
				}
			}
		}
	}
}

// flushType consumes the unconsumed entries of t and delivers them as one
// batch. Flushes of the same type are serialized so batches stay ordered.
func (r *Reporter) flushType(ctx context.Context, t EntryType, trigger string) error {
	r.flushMu[t].Lock()
	defer r.flushMu[t].Unlock()

	entries, dropped := r.buffers[t].ConsumeBatch()
	if len(entries) == 0 && dropped == 0 {
		return nil
	}

	start := time.Now()
	batch := NewBatch(t, entries, dropped, r.now())
	err := r.deliver(ctx, batch)

	if r.metrics != nil {
		r.metrics.RecordBatch(t.String())
		r.metrics.RecordFlushDuration(trigger, time.Since(start))
	}
	r.logger.Debug("batch flushed",
		"type", t,
		"trigger", trigger,
		"entries", len(entries),
		"dropped", dropped,
		"batch_id", batch.ID)
	return err
}

func (r *Reporter) deliver(ctx context.Context, batch Batch) error {
	r.listenersMu.RLock()
	subs := make([]*subscription, 0, len(r.listeners))
	for _, s := range r.listeners {
		if s.wants(batch.Type) {
			subs = append(subs, s)
		}
	}
	r.listenersMu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.listener.OnBatch(ctx, batch); err != nil {
			class := errors.Classify(err)
			if r.metrics != nil {
				r.metrics.RecordListenerError(s.name, class.String())
			}
			r.logger.Warn("listener failed",
				"listener", s.name,
				"type", batch.Type,
				"batch_id", batch.ID,
				"class", class.String(),
				"error", err)
			errs = append(errs, errors.Wrap(err, "Reporter", "deliver", "deliver to "+s.name))
		}
	}
	return stderrors.Join(errs...)
}
