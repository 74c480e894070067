// Package retry provides exponential backoff retry for transient failures,
// such as publishing a batch while the NATS connection is reconnecting.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (batch publishing)
//   - Quick(): 10 attempts, 50ms-1s delay (startup connections)
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//		return conn.Publish(subject, payload)
//	})
//
// Wrap an error with NonRetryable to stop immediately. Do respects context
// cancellation both between attempts and during backoff. All functions are
// safe for concurrent use.
package retry
