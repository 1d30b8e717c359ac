package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/realtime-chat/domain/chat"
)

// maxChannelsPerUser bounds the membership load at connect time. A user
// subscribed to more channels than this keeps only the first page; the
// limit exists so one roster cannot stall the connect path.
const maxChannelsPerUser = 1000

// Repository provides the persistence and membership query contracts
// consumed by the ingestion pipeline and the presence tracker.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateMessage persists a new message with a server-assigned id and
// timestamp. Persistence happens strictly before any broadcast, which is
// what makes sent_at monotonically non-decreasing per channel and process.
func (r *Repository) CreateMessage(ctx context.Context, channelID, senderID, content string) (*chat.Message, error) {
	msg := &chat.Message{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		SentAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// ChannelIDsOf returns the ids of all channels the user is a member of,
// ordered by join time and bounded by maxChannelsPerUser.
func (r *Repository) ChannelIDsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&chat.ChannelMember{}).
		Where("user_id = ?", userID).
		Order("joined_at").
		Limit(maxChannelsPerUser).
		Pluck("channel_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	return ids, nil
}

// IsMember reports whether the user holds any membership in the channel.
// Returns chat.ErrChannelNotFound if the channel does not exist.
func (r *Repository) IsMember(ctx context.Context, userID, channelID string) (bool, error) {
	exists, err := r.ChannelExists(ctx, channelID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, chat.ErrChannelNotFound
	}

	var count int64
	err = r.db.WithContext(ctx).
		Model(&chat.ChannelMember{}).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// IsAdmin reports whether the user holds the admin role in the channel.
func (r *Repository) IsAdmin(ctx context.Context, userID, channelID string) (bool, error) {
	var member chat.ChannelMember
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin role: %w", err)
	}
	return member.Role == chat.RoleAdmin, nil
}

// ChannelExists reports whether a channel with the given id exists.
func (r *Repository) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.Channel{}).
		Where("id = ?", channelID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check channel: %w", err)
	}
	return count > 0, nil
}

// UserByID retrieves a user profile for payload enrichment.
func (r *Repository) UserByID(ctx context.Context, userID string) (*chat.User, error) {
	var user chat.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// UpsertPresence creates or updates the single presence row for a user.
func (r *Repository) UpsertPresence(ctx context.Context, userID, status string, lastSeen time.Time) (*chat.UserPresence, error) {
	presence := &chat.UserPresence{
		UserID:     userID,
		Status:     status,
		LastSeenAt: lastSeen,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at"}),
		}).
		Create(presence).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert presence: %w", err)
	}
	return presence, nil
}

// Presence returns the durable presence record for a user.
func (r *Repository) Presence(ctx context.Context, userID string) (*chat.UserPresence, error) {
	var presence chat.UserPresence
	err := r.db.WithContext(ctx).First(&presence, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load presence: %w", err)
	}
	return &presence, nil
}
