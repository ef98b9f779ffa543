package stub

import (
	"context"
	"errors"
	"sync"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
)

// WSClient implements nem.WSClient in memory. Publish delivers to the
// registered handler synchronously, as the read loop would.
type WSClient struct {
	mu       sync.Mutex
	handlers map[string]nem.Handler
	endpoint domain.Endpoint
	live     bool
	closed   bool

	// ConnectErr, when set, fails Connect.
	ConnectErr error

	Connects    []domain.Endpoint
	Disconnects int
}

// NewWSClient creates a disconnected stub.
func NewWSClient() *WSClient {
	return &WSClient{handlers: make(map[string]nem.Handler)}
}

// Connect records endpoint and marks the stub live.
func (c *WSClient) Connect(_ context.Context, endpoint domain.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nem.ErrClientClosed
	}
	c.Connects = append(c.Connects, endpoint)
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.endpoint = endpoint
	c.live = true
	return nil
}

// Subscribe registers handler for topic.
func (c *WSClient) Subscribe(_ context.Context, topic string, handler nem.Handler) error {
	if handler == nil {
		return errors.New("nil handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nem.ErrClientClosed
	}
	c.handlers[topic] = handler
	return nil
}

// Disconnect marks the stub down. Registrations are kept.
func (c *WSClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live {
		c.Disconnects++
	}
	c.live = false
	return nil
}

// Endpoint returns the last connected endpoint.
func (c *WSClient) Endpoint() domain.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Close marks the stub closed.
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.live = false
	c.mu.Unlock()
	return nil
}

// Publish delivers body to topic's handler if the stub is live.
// It reports whether a handler received the message.
func (c *WSClient) Publish(topic string, body []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	live := c.live
	c.mu.Unlock()
	if !ok || !live {
		return false
	}
	h(nem.Message{Topic: topic, Body: body})
	return true
}

// Topics returns the registered topics.
func (c *WSClient) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Live reports whether the stub is connected.
func (c *WSClient) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// ConnectCount returns the number of Connect calls.
func (c *WSClient) ConnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Connects)
}

// DisconnectCount returns the number of effective Disconnect calls.
func (c *WSClient) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Disconnects
}

// LastConnect returns the endpoint of the most recent Connect call.
func (c *WSClient) LastConnect() domain.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Connects) == 0 {
		return domain.Endpoint{}
	}
	return c.Connects[len(c.Connects)-1]
}

// SetConnectErr sets the error returned by subsequent Connect calls.
func (c *WSClient) SetConnectErr(err error) {
	c.mu.Lock()
	c.ConnectErr = err
	c.mu.Unlock()
}
