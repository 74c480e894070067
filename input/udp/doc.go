// Package udp receives performance records as UDP datagrams.
//
// Each datagram carries one JSON payload in the format accepted by
// record.Decode, either a single record or an array. Datagrams are
// fire-and-forget: a malformed payload is counted and logged, and a datagram
// larger than MaxDatagramBytes is discarded whole rather than decoded
// truncated.
//
//	in, err := udp.NewInput(udp.DefaultConfig(), ingester, logger, registry)
//	if err != nil {
//	    return err
//	}
//	if err := in.Start(ctx); err != nil {
//	    return err
//	}
//	defer in.Stop(5 * time.Second)
//
// Binding is retried with pkg/retry so a port still held by a previous
// process does not fail startup immediately. Port 0 binds an ephemeral port;
// Addr reports which one.
package udp
