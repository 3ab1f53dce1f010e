package signaling

import "context"

// Transport is a best-effort, at-most-once pub/sub bus.
type Transport interface {
	// Subscribe returns once the subscription is acknowledged by the bus.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscription delivers raw payloads until Close. Messages is closed after Close
// or when the bus drops the subscription.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
