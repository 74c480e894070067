// Package metric provides Prometheus-based metrics collection and an HTTP
// server exposing them.
//
// The package has three layers:
//
//  1. Core Metrics: platform-level metrics registered automatically (Metrics type)
//  2. Component Registry: registration of component metrics such as per-buffer
//     counters (MetricsRegistrar interface)
//  3. HTTP Server: /metrics and /health endpoints (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(context.Background())
//
// # Component Metrics
//
// Components register their own collectors under a "component.metric" key.
// Registering the same key twice returns an invalid-class error:
//
//	pushes := prometheus.NewCounterVec(opts, []string{"status"})
//	if err := registry.RegisterCounterVec("marks", "buffer_pushes", pushes); err != nil {
//	    return err
//	}
//
// All metrics use the "perfstreams" namespace.
package metric
