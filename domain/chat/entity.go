// Package chat defines the durable entities of the message distribution
// core. All tables except messages and user_presences are administered by
// the surrounding CRUD surface and are read-only here.
package chat

import "time"

// Role of a user within a channel.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Presence status values. StatusOffline is never set by client request;
// it only results from the last live connection closing.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// User is a registered account. Only the fields needed to enrich outbound
// message payloads are mapped.
type User struct {
	ID          string `gorm:"primarykey;size:36" json:"id"`
	DisplayName string `gorm:"size:100" json:"display_name"`
	Email       string `gorm:"size:255;not null" json:"email"`
	AvatarURL   string `gorm:"size:500" json:"avatar_url"`
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

// Name returns the user's display name, falling back to the email address.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Channel is a named durable group with a membership roster.
type Channel struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	IsPrivate bool      `gorm:"not null;default:false" json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for Channel model.
func (Channel) TableName() string {
	return "channels"
}

// ChannelMember links a user to a channel with a role.
type ChannelMember struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	ChannelID string    `gorm:"size:36;not null;uniqueIndex:idx_channel_user" json:"channel_id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_channel_user" json:"user_id"`
	Role      string    `gorm:"size:10;not null;default:member" json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// TableName returns the table name for ChannelMember model.
func (ChannelMember) TableName() string {
	return "channel_members"
}

// Message is a persisted chat message. Created once by the ingestion
// pipeline, never mutated afterwards.
type Message struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	ChannelID string    `gorm:"size:36;not null;index" json:"channel_id"`
	SenderID  string    `gorm:"size:36;not null" json:"sender_id"`
	Content   string    `gorm:"not null" json:"content"`
	SentAt    time.Time `gorm:"index" json:"sent_at"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

// UserPresence holds the durable presence record, exactly one row per user.
// Status is offline if and only if the user has zero live connections
// across all processes, except for a transient explicit away override.
type UserPresence struct {
	UserID     string    `gorm:"primarykey;size:36" json:"user_id"`
	Status     string    `gorm:"size:10;not null;default:offline" json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// TableName returns the table name for UserPresence model.
func (UserPresence) TableName() string {
	return "user_presences"
}
