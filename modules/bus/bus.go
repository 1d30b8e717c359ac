// Package bus abstracts the topic-addressed publish/subscribe transport
// that relays events between processes. Delivery is at-least-once per
// topic with no cross-topic ordering guarantee.
package bus

import "context"

// Handler receives the raw bytes published on a subscribed topic.
type Handler func(data []byte)

// Subscription represents one active topic subscription.
type Subscription interface {
	// Unsubscribe removes the subscription. Safe to call once per
	// subscription; every Subscribe must be paired with one Unsubscribe.
	Unsubscribe() error
}

// Bus is the narrow transport interface the hub publishes through. The
// in-memory implementation backs single-process runs and tests; the NATS
// implementation backs multi-process deployments. Swapping drivers never
// touches the hub or the ingestion pipeline.
type Bus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string, handler Handler) (Subscription, error)
	Close() error
}
