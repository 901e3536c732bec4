package broker

import (
	"context"
)

// Delivery is one message handed out by a Consumer. Exactly one of Ack or
// Nack must be called per delivery.
type Delivery interface {
	ID() string
	Body() []byte
	Headers() map[string]string
	Ack(ctx context.Context) error
	// Nack rejects the delivery. With requeue false the message is
	// dead-lettered where the transport supports it; reason is attached to the
	// dead-lettered copy.
	Nack(ctx context.Context, requeue bool, reason error) error
}

type Consumer interface {
	// Deliveries starts consuming. The returned channel is closed when ctx is
	// cancelled or the underlying connection is lost.
	Deliveries(ctx context.Context) (<-chan Delivery, error)
	Name() string
	Close() error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, body []byte, headers map[string]string) error
	Close() error
}
