// Package testutil provides fakes and sample data shared by the perfstreams
// tests.
//
// MockNATSClient stands in for natsclient.Client without a server. It records
// every publish, delivers to subscriptions with NATS wildcard matching, and
// can be told to fail the next N publishes:
//
//	nc := testutil.NewMockNATSClient()
//	nc.FailNext(2, nats.ErrConnectionReconnecting)
//	out, _ := natspub.NewOutput(nc, cfg, nil)
//
// The record constants and helpers build ingest payloads:
//
//	payload := testutil.RecordArray(testutil.MarkRecord, testutil.EventRecord)
//	payload = testutil.RecordArray(testutil.Marks("frame", 100)...)
package testutil
