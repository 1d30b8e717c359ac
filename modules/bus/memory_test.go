package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	got := make(chan []byte, 1)

	sub, err := b.Subscribe("chat.room.channel.1", func(data []byte) {
		got <- data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "chat.room.channel.1", []byte("hello")))
	assert.Equal(t, []byte("hello"), waitFor(t, got))
}

func TestMemoryTopicIsolation(t *testing.T) {
	b := NewMemory()
	got := make(chan []byte, 1)

	sub, err := b.Subscribe("chat.room.channel.1", func(data []byte) {
		got <- data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "chat.room.channel.2", []byte("elsewhere")))

	select {
	case <-got:
		t.Fatal("received event published on another topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	b := NewMemory()
	got := make(chan []byte, 1)

	sub, err := b.Subscribe("chat.room.user.a", func(data []byte) {
		got <- data
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.TopicSubscribers("chat.room.user.a"))

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, b.TopicSubscribers("chat.room.user.a"))

	require.NoError(t, b.Publish(context.Background(), "chat.room.user.a", []byte("late")))
	select {
	case <-got:
		t.Fatal("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryMultipleSubscribers(t *testing.T) {
	b := NewMemory()
	first := make(chan []byte, 1)
	second := make(chan []byte, 1)

	s1, err := b.Subscribe("chat.room.channel.9", func(data []byte) { first <- data })
	require.NoError(t, err)
	defer s1.Unsubscribe()
	s2, err := b.Subscribe("chat.room.channel.9", func(data []byte) { second <- data })
	require.NoError(t, err)
	defer s2.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "chat.room.channel.9", []byte("fanout")))
	assert.Equal(t, []byte("fanout"), waitFor(t, first))
	assert.Equal(t, []byte("fanout"), waitFor(t, second))
}

func TestMemoryHandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := NewMemory()
	got := make(chan []byte, 1)

	s1, err := b.Subscribe("chat.room.channel.3", func([]byte) { panic("boom") })
	require.NoError(t, err)
	defer s1.Unsubscribe()
	s2, err := b.Subscribe("chat.room.channel.3", func(data []byte) { got <- data })
	require.NoError(t, err)
	defer s2.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "chat.room.channel.3", []byte("still delivered")))
	assert.Equal(t, []byte("still delivered"), waitFor(t, got))
}
