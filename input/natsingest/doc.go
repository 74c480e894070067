// Package natsingest subscribes to a NATS subject and records every
// performance record published on it.
//
// Payloads are JSON, either a single record or an array of records, in the
// format accepted by record.Decode:
//
//	{"entryType":"mark","name":"render-start","startTime":12.5}
//	[{"entryType":"event","name":"click","startTime":40,"duration":120}]
//
// A malformed payload or record is counted and logged by the ingester and
// never stops the subscription. Subject wildcards ("perf.ingest.>") are
// allowed, so producers can publish per-source subjects.
package natsingest
