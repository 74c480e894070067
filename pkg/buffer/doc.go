// Package buffer provides bounded, consumable circular buffers for collecting
// telemetry entries before a consumer drains them.
//
// # Overview
//
// A ConsumableBuffer keeps the most recent N entries. Every entry is in one of
// three states:
//
//   - unconsumed: added since the last Consume
//   - consumed: returned by a Consume, still retrievable through Entries and At
//   - overwritten: its slot was recycled by a later Add
//
// Consume only clears the unconsumed marking; it never deletes history. This
// lets one party poll "everything still present" while another drains
// "everything new" without interfering with each other.
//
// # Quick Start
//
//	buf := buffer.NewConsumableBuffer[int](3)
//
//	buf.Add(1)            // PushOK
//	buf.Add(2)            // PushOK
//	buf.Consume()         // [1 2]
//	buf.Consume()         // []
//	buf.Entries()         // [1 2], consuming did not remove anything
//
// # Push Status
//
// Add always stores the new entry. Once the buffer is full it must evict the
// oldest slot, and the returned PushStatus says what that slot held:
//
//   - PushOK: nothing was evicted, the buffer was still growing
//   - PushOverwrite: a consumed entry was evicted (benign)
//   - PushDrop: every slot was unconsumed, so an entry was lost before anyone
//     consumed it
//
// PushDrop is the only lossy transition. Callers count drops and report them
// with the next batch; SyncBuffer.ConsumeBatch does that bookkeeping.
//
// # Pointer Stability
//
// Slots are allocated once at construction. At, Back and
// NextOverwriteCandidate return pointers into that storage, and those
// pointers stay valid across Add. KeyedBuffer relies on this to keep a
// name index in lock-step with evictions:
//
//	marks := buffer.NewKeyedBuffer(1024, func(e Entry) string { return e.Name })
//	marks.Add(Entry{Name: "render-start"})
//	latest, ok := marks.FindLast("render-start")
//
// # Thread Safety
//
// ConsumableBuffer and KeyedBuffer are NOT safe for concurrent use and do no
// locking. They sit on hot callback paths where a lock or an allocation per
// Add is unwanted. Wrap them in a SyncBuffer when several goroutines share a
// buffer:
//
//	sb, err := buffer.NewSyncBuffer[Entry](marks,
//		buffer.WithMetrics[Entry](registry, "marks"),
//		buffer.WithReadyCallback[Entry](scheduleFlush),
//	)
//
// SyncBuffer adds always-on Statistics, optional Prometheus metrics, a pending
// drop counter, and an edge-triggered ready callback that fires only when the
// number of unconsumed entries goes from 0 to 1.
//
// # Performance Characteristics
//
//   - Add, At, Back, Consume bookkeeping: O(1)
//   - Consume, Entries, EntriesFunc: O(n) copies, n bounded by capacity
//   - ClearFunc: O(size) rebuild
//   - Memory: capacity * sizeof(T), allocated up front
package buffer
