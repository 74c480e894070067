// Package worker provides a generic worker pool for concurrent task processing.
//
// A Pool runs a fixed number of goroutines draining a bounded queue. Submit
// never blocks: when the queue is full it returns ErrQueueFull and the caller
// decides whether to retry, coalesce or drop the work.
//
//	pool, err := worker.NewPool(2, 16,
//	    func(ctx context.Context, t performance.EntryType) error {
//	        return reporter.flushType(ctx, t)
//	    },
//	    worker.WithName[performance.EntryType]("flush"),
//	    worker.WithMetricsRegistry[performance.EntryType](registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics and returned by Stats.
// Prometheus metrics are registered only when WithMetricsRegistry is given.
//
// A processor that panics is counted as failed; the worker keeps running.
//
// Stop closes the queue and waits for queued items to finish. Cancelling the
// context passed to Start makes workers exit without draining.
package worker
