package nem

import (
	"context"

	"nem-cosigner/internal/domain"
)

// Push topics published by NIS.
const (
	TopicNewBlocks = "/blocks/new"
	TopicErrors    = "/errors"
)

// TopicUnconfirmed returns the pending-transaction topic for address.
func TopicUnconfirmed(address string) string {
	return "/unconfirmed/" + NormalizeAddress(address)
}

// Message is a push message delivered to a topic handler.
type Message struct {
	Topic string
	Body  []byte
}

// Handler receives push messages for one topic, in transport order.
// Handlers run on the read loop and must not block.
type Handler func(Message)

// WSClient defines the NIS push subscription interface.
type WSClient interface {
	// Connect opens the transport to endpoint and replays every registered topic.
	Connect(ctx context.Context, endpoint domain.Endpoint) error

	// Subscribe registers handler for topic. Registrations survive reconnects.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Disconnect unsubscribes every topic and closes the transport.
	// It returns only after the read loop has stopped.
	Disconnect(ctx context.Context) error

	// Endpoint returns the endpoint of the last successful Connect.
	Endpoint() domain.Endpoint

	// Close releases the client permanently.
	Close() error
}
