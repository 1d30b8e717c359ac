// Package events defines the uniform wire envelope exchanged with clients
// and the typed payloads carried in it, in both directions.
package events

import (
	"encoding/json"
	"time"
)

// Client -> server message types.
const (
	TypeSendMessage   = "send_message"
	TypeTypingStarted = "typing_started"
	TypeTypingStopped = "typing_stopped"
	TypeStatusUpdate  = "status_update"
)

// Server -> client message types.
const (
	TypeAuthenticated     = "authenticated"
	TypeNewMessage        = "new_message"
	TypeUserTyping        = "user_typing"
	TypeUserStoppedTyping = "user_stopped_typing"
	TypePresenceUpdate    = "presence_update"
	TypeError             = "error"
)

// Envelope is the uniform wire structure carrying any event kind.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessagePayload is the client payload for send_message.
type SendMessagePayload struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// TypingPayload is the client payload for typing_started/typing_stopped.
type TypingPayload struct {
	ChannelID string `json:"channel_id"`
}

// StatusUpdatePayload is the client payload for status_update.
type StatusUpdatePayload struct {
	Status string `json:"status"`
}

// AuthenticatedPayload confirms a successful connect.
type AuthenticatedPayload struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// NewMessagePayload carries a persisted message to subscribers.
type NewMessagePayload struct {
	MessageID    string    `json:"message_id"`
	ChannelID    string    `json:"channel_id"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty"`
	Content      string    `json:"content"`
	SentAt       time.Time `json:"sent_at"`
}

// UserTypingPayload carries an ephemeral typing signal. A later signal for
// the same (channel, user) pair supersedes an earlier one.
type UserTypingPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
}

// PresenceUpdatePayload carries a presence-state change.
type PresenceUpdatePayload struct {
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ErrorPayload reports a per-message failure to the offending connection.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Marshal frames a typed payload into envelope bytes ready for the wire.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
