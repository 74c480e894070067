// Package natspub implements a performance.Listener that publishes each
// flushed batch as JSON on NATS.
//
// Batches of type T go to "<subject_prefix>.<T>", for example
// "perf.entries.event". Large batches are split into several messages of at
// most MaxEntriesPerMessage entries; every part repeats the batch ID and
// carries Part/Parts so a consumer can reassemble them.
//
// Publishing is retried with pkg/retry according to Config.Retry. A batch that
// still fails is reported to the reporter as a transient error wrapping
// errors.ErrPublishFailed.
//
// Any type with Publish(subject, data) works as the Publisher, including
// *nats.Conn and *natsclient.Client.
package natspub
