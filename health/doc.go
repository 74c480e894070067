// Package health tracks the health of the running pipeline and serves it over
// HTTP.
//
// # Health States
//
//   - healthy: operating normally
//   - degraded: working, but dropping entries or retrying deliveries
//   - unhealthy: not functioning, for example a lost NATS connection
//
// # Monitor
//
// Components report into a Monitor in one of two ways. Event-driven parts push
// their status when it changes:
//
//	monitor := health.NewMonitor()
//	client, _ := natsclient.NewClient(url, natsclient.WithHealthChangeCallback(func(ok bool) {
//	    if ok {
//	        monitor.UpdateHealthy("nats", "connected")
//	    } else {
//	        monitor.UpdateUnhealthy("nats", "disconnected")
//	    }
//	}))
//
// Parts that already keep counters register a Probe evaluated on every read:
//
//	monitor.Register("sink.http", func() health.Status {
//	    if sink.Stats().Failed > 0 {
//	        return health.NewDegraded("sink.http", "deliveries failed")
//	    }
//	    return health.NewHealthy("sink.http", "ok")
//	})
//
// AggregateHealth rolls every status up: any unhealthy component makes the
// system unhealthy, otherwise any degraded component makes it degraded.
//
// # HTTP
//
// Handler serves the aggregate as JSON and answers 503 only when the system is
// unhealthy. metric.Server mounts it at /health.
//
// # Security
//
// FromError sanitizes error text before it reaches the endpoint. URLs, file
// paths, IP addresses, ports and credential assignments are replaced with
// placeholders such as [URL] and [REDACTED].
//
// # Thread Safety
//
// Monitor is safe for concurrent use. Probes run outside the monitor lock and
// may be called concurrently by several HTTP requests.
package health
