package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
)

// mockLogger implements types.Logger for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// fakeStore is an in-memory Store with a fixed membership table.
type fakeStore struct {
	users    map[string]*domain.User
	members  map[string]map[string]bool // channelID -> userID
	messages []domain.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]*domain.User{
			"u1": {ID: "u1", DisplayName: "Alice", Email: "alice@example.com", AvatarURL: "https://cdn/a.png"},
			"u2": {ID: "u2", Email: "bob@example.com"},
		},
		members: map[string]map[string]bool{
			"general": {"u1": true, "u2": true},
			"private": {"u2": true},
		},
	}
}

func (f *fakeStore) CreateMessage(_ context.Context, channelID, senderID, content string) (*domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		SentAt:    time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeStore) IsMember(_ context.Context, userID, channelID string) (bool, error) {
	roster, ok := f.members[channelID]
	if !ok {
		return false, domain.ErrChannelNotFound
	}
	return roster[userID], nil
}

func (f *fakeStore) UserByID(_ context.Context, userID string) (*domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// fakeBroadcaster records broadcasts per room.
type fakeBroadcaster struct {
	sent []broadcastCall
}

type broadcastCall struct {
	room string
	data []byte
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, room string, data []byte) error {
	f.sent = append(f.sent, broadcastCall{room: room, data: data})
	return nil
}

// fakeStatusSetter records SetStatus calls.
type fakeStatusSetter struct {
	calls []string
}

func (f *fakeStatusSetter) SetStatus(_ context.Context, userID, status string) error {
	f.calls = append(f.calls, userID+"/"+status)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeBroadcaster, *fakeStatusSetter) {
	store := newFakeStore()
	hub := &fakeBroadcaster{}
	status := &fakeStatusSetter{}
	return NewService(store, hub, status, &mockLogger{}), store, hub, status
}

func decodeEnvelope(t *testing.T, data []byte) events.Envelope {
	t.Helper()
	var env events.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	svc, store, hub, _ := newTestService()

	msg, err := svc.SendMessage(context.Background(), "u1", "general", "hello world")
	require.NoError(t, err)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "hello world", store.messages[0].Content)
	assert.Equal(t, "u1", store.messages[0].SenderID)

	require.Len(t, hub.sent, 1)
	assert.Equal(t, domain.ChannelRoom("general"), hub.sent[0].room)

	env := decodeEnvelope(t, hub.sent[0].data)
	assert.Equal(t, events.TypeNewMessage, env.Type)

	var payload events.NewMessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.Equal(t, "general", payload.ChannelID)
	assert.Equal(t, "u1", payload.SenderID)
	assert.Equal(t, "Alice", payload.SenderName)
	assert.Equal(t, "https://cdn/a.png", payload.SenderAvatar)
	assert.Equal(t, "hello world", payload.Content)
}

func TestSendMessageSenderNameFallsBackToEmail(t *testing.T) {
	svc, _, hub, _ := newTestService()

	_, err := svc.SendMessage(context.Background(), "u2", "general", "hi")
	require.NoError(t, err)

	var payload events.NewMessagePayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, hub.sent[0].data).Payload, &payload))
	assert.Equal(t, "bob@example.com", payload.SenderName)
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	svc, store, hub, _ := newTestService()

	_, err := svc.SendMessage(context.Background(), "u1", "private", "sneaky")
	assert.ErrorIs(t, err, domain.ErrNotChannelMember)
	assert.Empty(t, store.messages, "rejected sends must not persist")
	assert.Empty(t, hub.sent, "rejected sends must not broadcast")
}

func TestSendMessageUnknownChannel(t *testing.T) {
	svc, store, _, _ := newTestService()

	_, err := svc.SendMessage(context.Background(), "u1", "nope", "hi")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	assert.Empty(t, store.messages)
}

func TestSendMessageValidation(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name      string
		channelID string
		content   string
	}{
		{"missing channel", "", "hi"},
		{"empty content", "general", ""},
		{"oversized content", "general", strings.Repeat("x", domain.MaxContentLength+1)},
		{"invalid utf8", "general", string([]byte{0xff, 0xfe})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, "u1", tt.channelID, tt.content)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, store.messages)
}

func TestTypingBroadcastsWithoutPersisting(t *testing.T) {
	svc, store, hub, _ := newTestService()

	require.NoError(t, svc.Typing(context.Background(), "u1", "general", true))
	require.NoError(t, svc.Typing(context.Background(), "u1", "general", false))

	assert.Empty(t, store.messages, "typing signals are ephemeral")
	require.Len(t, hub.sent, 2)
	assert.Equal(t, domain.ChannelRoom("general"), hub.sent[0].room)
	assert.Equal(t, events.TypeUserTyping, decodeEnvelope(t, hub.sent[0].data).Type)
	assert.Equal(t, events.TypeUserStoppedTyping, decodeEnvelope(t, hub.sent[1].data).Type)

	var payload events.UserTypingPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, hub.sent[0].data).Payload, &payload))
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "Alice", payload.UserName)
	assert.Equal(t, "general", payload.ChannelID)
}

func TestTypingRejectsNonMember(t *testing.T) {
	svc, _, hub, _ := newTestService()

	err := svc.Typing(context.Background(), "u1", "private", true)
	assert.ErrorIs(t, err, domain.ErrNotChannelMember)
	assert.Empty(t, hub.sent)
}

func TestSetStatusDelegatesToPresence(t *testing.T) {
	svc, _, _, status := newTestService()

	require.NoError(t, svc.SetStatus(context.Background(), "u1", domain.StatusAway))
	assert.Equal(t, []string{"u1/" + domain.StatusAway}, status.calls)
}
