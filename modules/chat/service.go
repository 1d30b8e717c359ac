// Package chat implements the message ingestion and broadcast pipeline:
// validate, authorize, persist, then fan out.
package chat

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-monolith/mono/pkg/types"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
)

// Store is the persistence and membership contract the pipeline needs.
type Store interface {
	CreateMessage(ctx context.Context, channelID, senderID, content string) (*domain.Message, error)
	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	UserByID(ctx context.Context, userID string) (*domain.User, error)
}

// Broadcaster delivers a framed event to a room's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, data []byte) error
}

// StatusSetter applies explicit presence status requests.
type StatusSetter interface {
	SetStatus(ctx context.Context, userID, status string) error
}

// Service runs the ingestion pipeline. Per-message failures are returned
// to the caller for conversion to an error envelope; they never affect
// other connections.
type Service struct {
	store    Store
	hub      Broadcaster
	presence StatusSetter
	logger   types.Logger
}

// NewService creates the pipeline service.
func NewService(store Store, hub Broadcaster, presence StatusSetter, logger types.Logger) *Service {
	return &Service{
		store:    store,
		hub:      hub,
		presence: presence,
		logger:   logger,
	}
}

// SendMessage validates and persists a chat message, then broadcasts it
// to the channel's room. Persistence strictly precedes the broadcast, so
// within one handling process a channel's events keep persistence order.
// No global cross-process ordering is provided.
func (s *Service) SendMessage(ctx context.Context, senderID, channelID, content string) (*domain.Message, error) {
	if err := validateContent(channelID, content); err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, senderID, channelID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: cannot send to channel %s", domain.ErrNotChannelMember, channelID)
	}

	sender, err := s.store.UserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, channelID, senderID, content)
	if err != nil {
		return nil, err
	}

	data, err := events.Marshal(events.TypeNewMessage, events.NewMessagePayload{
		MessageID:    msg.ID,
		ChannelID:    msg.ChannelID,
		SenderID:     msg.SenderID,
		SenderName:   sender.Name(),
		SenderAvatar: sender.AvatarURL,
		Content:      msg.Content,
		SentAt:       msg.SentAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to frame message event: %w", err)
	}

	if err := s.hub.Broadcast(ctx, domain.ChannelRoom(channelID), data); err != nil {
		// The message is durable; subscribers on other processes may have
		// missed it. Surface the failure to the sender.
		return nil, fmt.Errorf("failed to broadcast message %s: %w", msg.ID, err)
	}

	s.logger.Debug("Message sent", "messageID", msg.ID, "channelID", channelID, "senderID", senderID)
	return msg, nil
}

// Typing broadcasts an ephemeral typing signal to the channel's room.
// Never persisted; a later signal for the same (channel, user) supersedes
// an earlier one on the receiver.
func (s *Service) Typing(ctx context.Context, userID, channelID string, started bool) error {
	if channelID == "" {
		return fmt.Errorf("%w: channel_id is required", domain.ErrValidation)
	}

	member, err := s.store.IsMember(ctx, userID, channelID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: cannot signal typing in channel %s", domain.ErrNotChannelMember, channelID)
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	msgType := events.TypeUserTyping
	if !started {
		msgType = events.TypeUserStoppedTyping
	}
	data, err := events.Marshal(msgType, events.UserTypingPayload{
		ChannelID: channelID,
		UserID:    userID,
		UserName:  user.Name(),
	})
	if err != nil {
		return fmt.Errorf("failed to frame typing event: %w", err)
	}

	return s.hub.Broadcast(ctx, domain.ChannelRoom(channelID), data)
}

// SetStatus applies an explicit presence status request.
func (s *Service) SetStatus(ctx context.Context, userID, status string) error {
	return s.presence.SetStatus(ctx, userID, status)
}

func validateContent(channelID, content string) error {
	if channelID == "" {
		return fmt.Errorf("%w: channel_id is required", domain.ErrValidation)
	}
	if content == "" {
		return fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if len(content) > domain.MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d bytes", domain.ErrValidation, domain.MaxContentLength)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", domain.ErrValidation)
	}
	return nil
}
