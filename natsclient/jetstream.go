package natsclient

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/perfstreams/errors"
)

// JetStream returns a JetStream context bound to the current connection.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	conn := m.connection()
	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "JetStream", "create JetStream context")
	}
	return js, nil
}

// ObjectStore binds the object store bucket named in cfg, creating it when
// it does not exist yet.
func (m *Client) ObjectStore(ctx context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error) {
	if m.Status() == StatusCircuitOpen {
		return nil, errors.WrapTransient(ErrCircuitOpen, "Client", "ObjectStore", "check circuit breaker")
	}

	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}

	store, err := js.ObjectStore(ctx, cfg.Bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, cfg)
	}
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "ObjectStore", "bind bucket "+cfg.Bucket)
	}

	m.resetCircuit()
	m.logger.Info("object store ready", "bucket", cfg.Bucket)
	return store, nil
}
