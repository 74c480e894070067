// Package httppost provides a performance.Listener that POSTs every flushed
// batch to an HTTP endpoint as one JSON document.
//
// # Quick Start
//
//	out, err := httppost.NewOutput(httppost.Config{
//	    URL:        "https://collector.example.com/perf",
//	    Headers:    map[string]string{"X-Api-Key": key},
//	    Timeout:    10,
//	    RetryCount: 3,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	unsubscribe, err := reporter.Subscribe(out, performance.EntryTypeMeasure)
//
// # Retries
//
// Transport errors and 5xx, 408 and 429 responses are retried with
// exponential backoff through pkg/retry, up to RetryCount extra attempts. Any
// other non-2xx response stops immediately and is returned as an invalid
// error, since resending the same batch cannot succeed. Exhausted retries are
// returned as a transient error wrapping errors.ErrPublishFailed.
//
// # TLS
//
// Config.TLS adds CA files, a client certificate for mTLS, or a minimum
// version via pkg/tlsutil. The system CA bundle is always trusted.
package httppost
