// Package archive keeps every flushed performance batch in a NATS JetStream
// object store bucket.
//
// Each batch becomes one JSON object named
//
//	<key prefix>/<entry type>/<yyyy>/<mm>/<dd>/<hh>/<batch id>.json
//
// so listing a prefix such as "batches/event/2024/10/08/" returns one hour of
// event batches in flush order. The hour bucket is taken from the batch's
// FlushedAt in UTC.
//
// Objects carry the entry type, entry count, drop count and flush time
// (Unix milliseconds) as headers, so consumers can filter without downloading
// the body.
//
// The bucket is bound or created through natsclient.Client.ObjectStore using
// Config.BucketConfig, and expires objects after MaxAgeDays:
//
//	store, err := client.ObjectStore(ctx, cfg.BucketConfig())
//	out, err := archive.NewOutput(store, cfg, logger)
//	unsubscribe, err := reporter.Subscribe(out)
package archive
