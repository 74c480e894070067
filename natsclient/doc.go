// Package natsclient manages a single core NATS connection.
//
// The Client wraps nats.Conn with:
//   - a circuit breaker around Connect: after a run of failures (5 by
//     default) Connect fails fast with ErrCircuitOpen until the backoff
//     elapses, and the backoff doubles each time the circuit opens
//   - connection status tracking driven by the nats.go event handlers, mirrored
//     into the perfstreams_nats_connected gauge when WithMetrics is given
//   - Subscribe with a per-message context and Close with a bounded drain
//
// Usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("perfstreams"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// Client satisfies the Publisher interface of output/natspub and the
// Subscriber interface of input/natsingest.
package natsclient
