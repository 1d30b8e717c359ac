// Package hub owns the process-local connection registry and the per-room
// subscriber directory, and bridges both to the distributed fanout bus.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"

	"github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/bus"
)

// frame wraps an event on the bus with the publishing process's identity
// so a process never re-delivers its own publication to itself.
type frame struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// relay is a process's subscription to one room's bus topic, reference
// counted by local subscribers.
type relay struct {
	sub  bus.Subscription
	refs int
}

// Hub tracks live connections and which rooms each one receives events
// for. It is an owned service object: created once at process start,
// mutated only through its synchronized API, torn down on shutdown.
type Hub struct {
	id     string
	bus    bus.Bus
	logger types.Logger

	mu          sync.RWMutex
	clients     map[string]*Client            // clientID -> client
	rooms       map[string]map[string]*Client // room -> clientID -> client
	clientRooms map[string]map[string]bool    // clientID -> set of rooms
	relays      map[string]*relay             // room -> bus relay
}

// New creates a hub publishing through the given bus.
func New(b bus.Bus, logger types.Logger) *Hub {
	return &Hub{
		id:          uuid.New().String(),
		bus:         b,
		logger:      logger,
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		clientRooms: make(map[string]map[string]bool),
		relays:      make(map[string]*relay),
	}
}

// Register adds a connection for an authenticated user. The identity must
// be supplied by the surrounding transport layer.
func (h *Hub) Register(c *Client) error {
	if c.UserID == "" {
		return chat.ErrNotAuthenticated
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	h.clientRooms[c.ID] = make(map[string]bool)
	h.logger.Debug("Client registered", "clientID", c.ID, "userID", c.UserID)
	return nil
}

// Subscribe adds the connection to the room's local subscriber set. The
// first local subscriber joins the room's bus topic (refcount 0 -> 1).
//
// The topic join runs under the hub lock so the refcount and the relay
// stay atomic. Both drivers treat subscribe as a buffered control
// operation rather than per-message I/O; per-message publish and
// delivery never hold the lock.
func (h *Hub) Subscribe(c *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return fmt.Errorf("subscribe %s: client %s not registered", room, c.ID)
	}
	if h.clientRooms[c.ID][room] {
		return nil
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][c.ID] = c
	h.clientRooms[c.ID][room] = true

	rel := h.relays[room]
	if rel == nil {
		sub, err := h.bus.Subscribe(chat.BusTopic(room), func(data []byte) {
			h.deliverRemote(room, data)
		})
		if err != nil {
			delete(h.rooms[room], c.ID)
			if len(h.rooms[room]) == 0 {
				delete(h.rooms, room)
			}
			delete(h.clientRooms[c.ID], room)
			return fmt.Errorf("failed to join bus topic for %s: %w", room, err)
		}
		rel = &relay{sub: sub}
		h.relays[room] = rel
	}
	rel.refs++
	return nil
}

// Unsubscribe removes the connection from the room's local subscriber
// set. The last local subscriber leaves the bus topic (refcount 1 -> 0).
func (h *Hub) Unsubscribe(c *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribeLocked(c.ID, room)
}

func (h *Hub) unsubscribeLocked(clientID, room string) error {
	if !h.clientRooms[clientID][room] {
		return nil
	}

	delete(h.rooms[room], clientID)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	delete(h.clientRooms[clientID], room)

	rel := h.relays[room]
	if rel == nil {
		return nil
	}
	rel.refs--
	if rel.refs > 0 {
		return nil
	}
	delete(h.relays, room)
	if err := rel.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to leave bus topic for %s: %w", room, err)
	}
	return nil
}

// Disconnect removes the connection and every subscription it held. It is
// idempotent and must run on every exit path, including transport failure.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	rooms := make([]string, 0, len(h.clientRooms[c.ID]))
	for room := range h.clientRooms[c.ID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		if err := h.unsubscribeLocked(c.ID, room); err != nil {
			h.logger.Warn("Failed to unsubscribe on disconnect", "clientID", c.ID, "room", room, "error", err)
		}
	}
	delete(h.clientRooms, c.ID)
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.Close()
	h.logger.Debug("Client disconnected", "clientID", c.ID, "userID", c.UserID)
}

// Broadcast delivers framed event bytes to every local subscriber of the
// room and publishes them to the room's bus topic for other processes.
// Local delivery from this process's own bus publication is suppressed by
// origin; redelivery of a foreign publication is delivered again
// (at-least-once, no dedup).
func (h *Hub) Broadcast(ctx context.Context, room string, data []byte) error {
	h.deliverLocal(room, data)

	f, err := json.Marshal(frame{Origin: h.id, Data: data})
	if err != nil {
		return fmt.Errorf("failed to frame broadcast: %w", err)
	}
	if err := h.bus.Publish(ctx, chat.BusTopic(room), f); err != nil {
		return fmt.Errorf("failed to publish broadcast for %s: %w", room, err)
	}
	return nil
}

// deliverRemote handles a bus delivery for a room this process has at
// least one local subscriber in.
func (h *Hub) deliverRemote(room string, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		h.logger.Warn("Dropping malformed bus frame", "room", room, "error", err)
		return
	}
	if f.Origin == h.id {
		return
	}
	h.deliverLocal(room, f.Data)
}

func (h *Hub) deliverLocal(room string, data []byte) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		if !c.TrySend(data) {
			// Sustained overflow: close the connection; its read loop
			// then runs the regular disconnect cleanup.
			h.logger.Warn("Outbound queue overflow, closing client", "clientID", c.ID, "userID", c.UserID)
			c.Close()
		}
	}
}

// CloseAll closes every live connection. Called on process shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSubscribers returns the number of local subscribers in a room.
func (h *Hub) RoomSubscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// IsSubscribed reports whether a connection currently receives a room's
// events in this process.
func (h *Hub) IsSubscribed(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRooms[clientID][room]
}

// Rooms returns the rooms a connection is subscribed to.
func (h *Hub) Rooms(clientID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.clientRooms[clientID]))
	for room := range h.clientRooms[clientID] {
		rooms = append(rooms, room)
	}
	return rooms
}
