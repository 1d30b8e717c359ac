package bus

import (
	"context"
	"log"
	"sync"
)

// Memory is an in-process Bus. Handlers run asynchronously so a publisher
// is never blocked by a slow subscriber, matching the delivery model of
// the networked driver.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
	closed   bool
}

// NewMemory creates a new in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		handlers: make(map[string]map[int]Handler),
	}
}

// Publish delivers data to every handler subscribed to the topic.
func (m *Memory) Publish(_ context.Context, topic string, data []byte) error {
	m.mu.RLock()
	subs := make([]Handler, 0, len(m.handlers[topic]))
	for _, h := range m.handlers[topic] {
		subs = append(subs, h)
	}
	m.mu.RUnlock()

	for _, handler := range subs {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[bus] Handler panic on %s: %v", topic, r)
				}
			}()
			h(data)
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (m *Memory) Subscribe(topic string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handlers[topic] == nil {
		m.handlers[topic] = make(map[int]Handler)
	}
	id := m.nextID
	m.nextID++
	m.handlers[topic][id] = handler

	return &memorySubscription{bus: m, topic: topic, id: id}, nil
}

// Close drops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[string]map[int]Handler)
	m.closed = true
	return nil
}

// TopicSubscribers returns the number of live subscriptions on a topic.
func (m *Memory) TopicSubscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[topic])
}

type memorySubscription struct {
	bus   *Memory
	topic string
	id    int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if handlers, ok := s.bus.handlers[s.topic]; ok {
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.bus.handlers, s.topic)
		}
	}
	return nil
}
