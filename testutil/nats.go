package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// Message is one message captured by MockNATSClient.
type Message struct {
	Subject string
	Data    []byte
}

type subscription struct {
	pattern string
	handler func(context.Context, string, []byte)
}

// MockNATSClient is an in-memory stand-in for natsclient.Client. Publish,
// Subscribe and Unsubscribe match the client's signatures, so it satisfies the publisher and
// subscriber interfaces of the NATS sink and ingest. Published messages are
// recorded and delivered synchronously to matching subscriptions, including
// "*" and ">" wildcards. Safe for concurrent use.
type MockNATSClient struct {
	mu            sync.Mutex
	messages      []Message
	subscriptions []subscription
	failures      int
	failErr       error
	subscribeErr  error
	closed        bool
}

// NewMockNATSClient creates an empty mock client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{}
}

// FailNext makes the next n calls to Publish return err without recording.
func (c *MockNATSClient) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
	c.failErr = err
}

// FailSubscribe makes Subscribe return err until it is called again with nil.
func (c *MockNATSClient) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// RemainingFailures returns how many injected failures are left.
func (c *MockNATSClient) RemainingFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Publish records data and hands it to every matching subscription.
func (c *MockNATSClient) Publish(subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mock client is closed")
	}
	if c.failures > 0 {
		c.failures--
		err := c.failErr
		c.mu.Unlock()
		return err
	}

	data = append([]byte(nil), data...)
	c.messages = append(c.messages, Message{Subject: subject, Data: data})

	var handlers []func(context.Context, string, []byte)
	for _, sub := range c.subscriptions {
		if SubjectMatches(sub.pattern, subject) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	// handlers run outside the lock so they may publish
	for _, h := range handlers {
		h(context.Background(), subject, data)
	}
	return nil
}

// Subscribe registers handler for subject, which may contain wildcards.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, string, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mock client is closed")
	}
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscriptions = append(c.subscriptions, subscription{pattern: subject, handler: handler})
	return nil
}

// Unsubscribe removes every subscription registered for subject.
func (c *MockNATSClient) Unsubscribe(subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.subscriptions[:0]
	for _, sub := range c.subscriptions {
		if sub.pattern != subject {
			kept = append(kept, sub)
		}
	}
	c.subscriptions = kept
	return nil
}

// Subscriptions returns how many subscriptions are registered.
func (c *MockNATSClient) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions)
}

// Messages returns the recorded messages, optionally limited to one subject.
func (c *MockNATSClient) Messages(subject string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if subject == "" || m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// Subjects returns the subject of every recorded message, in publish order.
func (c *MockNATSClient) Subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Subject
	}
	return out
}

// Close makes later Publish and Subscribe calls fail.
func (c *MockNATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// WaitForMessages blocks until subject has at least n messages or the timeout
// expires, failing the test in the latter case.
func (c *MockNATSClient) WaitForMessages(t *testing.T, subject string, n int, timeout time.Duration) []Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		msgs := c.Messages(subject)
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d messages on %q, got %d", n, subject, len(msgs))
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SubjectMatches reports whether subject matches pattern using NATS token
// rules: "*" matches one token and a trailing ">" matches one or more.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
