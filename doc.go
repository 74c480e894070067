// Package perfstreams collects performance timeline entries (marks, measures,
// event timings and long tasks), buffers them in bounded consumable buffers,
// and delivers them in batches to pluggable sinks.
//
// # Architecture
//
//	producers ──▶ input/{natsingest,udp,websocket} ──▶ input/record
//	                                                       │
//	                                                       ▼
//	                                             performance.Reporter
//	                                        (one pkg/buffer per entry type)
//	                                                       │ batches
//	                                                       ▼
//	                          output/{natspub,file,httppost,archive}
//
// pkg/buffer holds the core data structure: a fixed-capacity circular buffer
// whose entries are unconsumed until a consumer drains them, consumed
// afterwards, and overwritten once the slot is recycled. Only overwriting an
// unconsumed entry counts as a drop, and drops travel downstream with the
// next batch.
//
// performance.Reporter owns one buffer per entry type. A buffer going from
// empty to non-empty schedules a flush; the flush consumes every buffer and
// hands each non-empty batch to the listeners subscribed to that type.
//
// # Packages
//
// Core:
//   - pkg/buffer: ConsumableBuffer, KeyedBuffer and SyncBuffer
//   - performance: entries, batches and the Reporter
//
// Transport and delivery:
//   - natsclient: NATS connection with circuit breaker and JetStream access
//   - input/*: ingest of JSON entry records over NATS, UDP and WebSocket
//   - output/*: batch sinks for NATS, rotating files, HTTP and object storage
//
// Infrastructure:
//   - config: layered YAML configuration with environment overrides
//   - errors: classified errors (transient, invalid, fatal) and retry config
//   - health: component health monitor and the /health endpoint
//   - metric: Prometheus registry and the metrics HTTP server
//   - pkg/retry, pkg/worker, pkg/timestamp, pkg/tlsutil: shared helpers
//
// # Running
//
//	./bin/perfstreams -config configs/perfstreams.yaml
//	./bin/perfstreams -validate -config configs/perfstreams.yaml
//
// See cmd/perfstreams for flags and environment variables.
package perfstreams
