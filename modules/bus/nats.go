package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS implements Bus on core NATS subjects. One subject per room topic;
// a process holds a subject subscription only while it has at least one
// local subscriber for the room.
type NATS struct {
	nc *nats.Conn
}

// NewNATS connects to the broker with retry.
func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("realtime-chat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Publish sends data on the topic's subject.
func (n *NATS) Publish(_ context.Context, topic string, data []byte) error {
	if err := n.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for the topic's subject.
func (n *NATS) Subscribe(topic string, handler Handler) (Subscription, error) {
	sub, err := n.nc.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close drains the connection, letting in-flight deliveries finish.
func (n *NATS) Close() error {
	if n.nc == nil || n.nc.IsClosed() {
		return nil
	}
	return n.nc.Drain()
}

// IsConnected reports broker connectivity.
func (n *NATS) IsConnected() bool {
	return n.nc != nil && n.nc.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
