// Package websocket accepts performance records over WebSocket connections.
//
// Producers that keep a long-lived connection (browser extensions, device
// agents) open a WebSocket to Config.Path and send one JSON payload per
// message, either a single record or an array, in the format accepted by
// record.Decode. The server answers each message with an Ack:
//
//	-> [{"entryType":"mark","name":"boot","startTime":0}]
//	<- {"type":"ack","accepted":1,"rejected":0,"invalid":0}
//
// Records the reporter refuses, such as a measure naming an unknown mark,
// count as rejected. A malformed payload is acknowledged with invalid 1 and
// the connection stays open. Messages larger than ReadLimitBytes close the connection.
//
// # Authentication
//
// Auth.Type selects "none", "bearer" or "basic". Secrets come from the
// environment variables named in AuthConfig, never from the config file.
//
// # Lifecycle
//
// Start listens on Config.Port. Alternatively mount Handler on an existing
// mux. Stop closes every connection and waits for their handlers to exit.
// With TLS.Enabled, Start serves wss using pkg/tlsutil, optionally with
// client certificate verification.
package websocket
