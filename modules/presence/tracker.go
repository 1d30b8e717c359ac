// Package presence derives and persists per-user online/away/offline
// status from live connection counts and explicit status requests.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
)

// Store is the persistence contract the tracker needs.
type Store interface {
	UpsertPresence(ctx context.Context, userID, status string, lastSeen time.Time) (*chat.UserPresence, error)
}

// Broadcaster delivers a framed event to a room's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, data []byte) error
}

// Audience resolves which rooms, beyond the user's personal room, receive
// a presence change. Who is "interested" (contacts, shared-channel
// co-members) is surrounding-system policy; the default audience is empty.
type Audience func(ctx context.Context, userID string) []string

// Tracker is the presence state machine. All transitions persist the
// durable record before broadcasting.
type Tracker struct {
	counter  Counter
	store    Store
	hub      Broadcaster
	audience Audience
	logger   types.Logger
}

// NewTracker creates a presence tracker. audience may be nil.
func NewTracker(counter Counter, store Store, hub Broadcaster, audience Audience, logger types.Logger) *Tracker {
	return &Tracker{
		counter:  counter,
		store:    store,
		hub:      hub,
		audience: audience,
		logger:   logger,
	}
}

// ConnectionOpened records a new live connection. The first connection
// (count 0 -> 1) transitions the user online, clearing any stale away.
func (t *Tracker) ConnectionOpened(ctx context.Context, userID string) error {
	n, err := t.counter.Up(ctx, userID)
	if err != nil {
		return fmt.Errorf("presence connect: %w", err)
	}
	if n != 1 {
		return nil
	}
	return t.transition(ctx, userID, chat.StatusOnline, time.Now().UTC())
}

// ConnectionClosed records a closed connection. The last connection
// (count 1 -> 0) transitions the user offline with the disconnect time as
// last seen.
func (t *Tracker) ConnectionClosed(ctx context.Context, userID string) error {
	n, err := t.counter.Down(ctx, userID)
	if err != nil {
		return fmt.Errorf("presence disconnect: %w", err)
	}
	if n != 0 {
		return nil
	}
	return t.transition(ctx, userID, chat.StatusOffline, time.Now().UTC())
}

// SetStatus applies an explicit client status request. Only online and
// away are settable, and only while the user holds a live connection;
// offline exclusively results from reaching zero connections.
func (t *Tracker) SetStatus(ctx context.Context, userID, status string) error {
	if status != chat.StatusOnline && status != chat.StatusAway {
		return fmt.Errorf("%w: status must be online or away", chat.ErrValidation)
	}
	n, err := t.counter.Count(ctx, userID)
	if err != nil {
		return fmt.Errorf("presence status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no live connection", chat.ErrValidation)
	}
	return t.transition(ctx, userID, status, time.Now().UTC())
}

func (t *Tracker) transition(ctx context.Context, userID, status string, at time.Time) error {
	record, err := t.store.UpsertPresence(ctx, userID, status, at)
	if err != nil {
		return fmt.Errorf("presence upsert: %w", err)
	}

	data, err := events.Marshal(events.TypePresenceUpdate, events.PresenceUpdatePayload{
		UserID:     record.UserID,
		Status:     record.Status,
		LastSeenAt: record.LastSeenAt,
	})
	if err != nil {
		return fmt.Errorf("presence payload: %w", err)
	}

	rooms := []string{chat.UserRoom(userID)}
	if t.audience != nil {
		rooms = append(rooms, t.audience(ctx, userID)...)
	}
	for _, room := range rooms {
		if err := t.hub.Broadcast(ctx, room, data); err != nil {
			t.logger.Warn("Failed to broadcast presence change", "userID", userID, "room", room, "error", err)
		}
	}

	t.logger.Info("Presence transition", "userID", userID, "status", status)
	return nil
}
