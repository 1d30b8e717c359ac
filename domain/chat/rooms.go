package chat

import "strings"

// Rooms are the unit of fanout. Every channel maps to one room and every
// user additionally owns a personal room for presence and direct events.
// Room names double as process-local subscription keys; BusTopic maps a
// room to its cross-process pub/sub topic deterministically.

const (
	channelRoomPrefix = "channel:"
	userRoomPrefix    = "user:"
	busTopicPrefix    = "chat.room."
)

// ChannelRoom returns the room name for a channel.
func ChannelRoom(channelID string) string {
	return channelRoomPrefix + channelID
}

// UserRoom returns the personal room name for a user.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// BusTopic returns the fanout bus topic for a room. NATS subjects use "."
// as a hierarchy separator, so the room's ":" is rewritten.
func BusTopic(room string) string {
	return busTopicPrefix + strings.ReplaceAll(room, ":", ".")
}
