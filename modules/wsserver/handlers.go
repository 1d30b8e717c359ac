package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
	chatmod "github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/hub"
	presencemod "github.com/example/realtime-chat/modules/presence"
)

// Rate limiting constants for send_message.
const (
	messagesPerSecond = 10
	burstSize         = 20
)

// MembershipLoader supplies the durable channel roster at connect time.
type MembershipLoader interface {
	ChannelIDsOf(ctx context.Context, userID string) ([]string, error)
}

// session is the per-connection state threaded through the dispatch table.
type session struct {
	client  *hub.Client
	limiter *rateLimiter
}

// handlerFunc handles one client message type.
type handlerFunc func(ctx context.Context, s *session, payload json.RawMessage) error

// Handlers owns the WebSocket connection lifecycle and the closed
// dispatch table routing client envelopes to the pipeline.
type Handlers struct {
	hub         *hub.Hub
	chat        *chatmod.Service
	tracker     *presencemod.Tracker
	memberships MembershipLoader
	logger      types.Logger

	routes map[string]handlerFunc
}

// NewHandlers creates the handlers and their dispatch table.
func NewHandlers(h *hub.Hub, chat *chatmod.Service, tracker *presencemod.Tracker, memberships MembershipLoader, logger types.Logger) *Handlers {
	hs := &Handlers{
		hub:         h,
		chat:        chat,
		tracker:     tracker,
		memberships: memberships,
		logger:      logger,
	}
	hs.routes = map[string]handlerFunc{
		events.TypeSendMessage:   hs.handleSendMessage,
		events.TypeTypingStarted: hs.handleTypingStarted,
		events.TypeTypingStopped: hs.handleTypingStopped,
		events.TypeStatusUpdate:  hs.handleStatusUpdate,
	}
	return hs
}

// HandleWebSocket serves one connection for its whole lifetime. The
// surrounding transport layer authenticates and stores the identity in
// locals before the upgrade; a missing identity closes the connection
// immediately.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals("user_id").(string)
	userName, _ := c.Locals("user_name").(string)

	if userID == "" {
		h.logger.Warn("Rejecting unauthenticated connection")
		_ = c.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.serve(ctx, hub.NewClient(c, userID, userName), c)
}

// frameReader is the inbound half of a connection.
type frameReader interface {
	ReadMessage() (int, []byte, error)
}

// serve runs one connection from registration through cleanup. Cleanup
// runs on every exit path, but the presence close transition only runs
// when the matching open transition succeeded; a failed connect must not
// decrement the live-connection count.
func (h *Handlers) serve(ctx context.Context, client *hub.Client, conn frameReader) {
	if err := h.hub.Register(client); err != nil {
		h.logger.Error("Failed to register client", "userID", client.UserID, "error", err)
		client.Close()
		return
	}

	opened, err := h.openSession(ctx, client)
	defer func() {
		h.hub.Disconnect(client)
		if !opened {
			return
		}
		if err := h.tracker.ConnectionClosed(context.Background(), client.UserID); err != nil {
			h.logger.Error("Presence disconnect transition failed", "userID", client.UserID, "error", err)
		}
	}()
	if err != nil {
		h.logger.Error("Failed to open session", "userID", client.UserID, "error", err)
		h.sendError(client, err)
		return
	}

	h.logger.Info("WebSocket connected", "userID", client.UserID, "clientID", client.ID)

	s := &session{
		client:  client,
		limiter: newRateLimiter(burstSize, messagesPerSecond),
	}
	h.readLoop(ctx, conn, s)

	h.logger.Info("WebSocket disconnected", "userID", client.UserID, "clientID", client.ID)
}

// openSession subscribes the connection to its personal room and every
// channel room from the durable roster, transitions presence, and sends
// the welcome event. It reports whether the presence open transition ran,
// so the caller knows whether a matching close transition is owed.
func (h *Handlers) openSession(ctx context.Context, client *hub.Client) (bool, error) {
	if err := h.hub.Subscribe(client, domain.UserRoom(client.UserID)); err != nil {
		return false, err
	}

	channelIDs, err := h.memberships.ChannelIDsOf(ctx, client.UserID)
	if err != nil {
		return false, err
	}
	for _, channelID := range channelIDs {
		if err := h.hub.Subscribe(client, domain.ChannelRoom(channelID)); err != nil {
			return false, err
		}
	}

	if err := h.tracker.ConnectionOpened(ctx, client.UserID); err != nil {
		return false, err
	}

	welcome, err := events.Marshal(events.TypeAuthenticated, events.AuthenticatedPayload{
		UserID:  client.UserID,
		Message: "Welcome to the chat server!",
	})
	if err != nil {
		return true, err
	}
	client.TrySend(welcome)
	return true, nil
}

// readLoop processes inbound frames strictly in arrival order. Malformed
// frames produce an error envelope and the connection stays open.
func (h *Handlers) readLoop(ctx context.Context, conn frameReader, s *session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", "clientID", s.client.ID, "error", err)
			}
			return
		}

		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.sendError(s.client, fmt.Errorf("%w: invalid JSON envelope", domain.ErrValidation))
			continue
		}

		h.dispatch(ctx, s, env)
	}
}

// dispatch routes one envelope through the closed table. Unknown types
// are a validation error, never silently dropped.
func (h *Handlers) dispatch(ctx context.Context, s *session, env events.Envelope) {
	fn, ok := h.routes[env.Type]
	if !ok {
		h.sendError(s.client, fmt.Errorf("%w: unknown message type %q", domain.ErrValidation, env.Type))
		return
	}
	if err := fn(ctx, s, env.Payload); err != nil {
		h.sendError(s.client, err)
	}
}

func (h *Handlers) handleSendMessage(ctx context.Context, s *session, payload json.RawMessage) error {
	if !s.limiter.allow() {
		return fmt.Errorf("%w: please slow down", domain.ErrRateLimited)
	}

	var req events.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: invalid send_message payload", domain.ErrValidation)
	}

	_, err := h.chat.SendMessage(ctx, s.client.UserID, req.ChannelID, req.Content)
	return err
}

func (h *Handlers) handleTypingStarted(ctx context.Context, s *session, payload json.RawMessage) error {
	return h.handleTyping(ctx, s, payload, true)
}

func (h *Handlers) handleTypingStopped(ctx context.Context, s *session, payload json.RawMessage) error {
	return h.handleTyping(ctx, s, payload, false)
}

func (h *Handlers) handleTyping(ctx context.Context, s *session, payload json.RawMessage, started bool) error {
	var req events.TypingPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: invalid typing payload", domain.ErrValidation)
	}
	return h.chat.Typing(ctx, s.client.UserID, req.ChannelID, started)
}

func (h *Handlers) handleStatusUpdate(ctx context.Context, s *session, payload json.RawMessage) error {
	var req events.StatusUpdatePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: invalid status_update payload", domain.ErrValidation)
	}
	return h.chat.SetStatus(ctx, s.client.UserID, req.Status)
}

// sendError converts a failure to an error envelope on the offending
// connection. Internal failures are logged in full but reported
// generically.
func (h *Handlers) sendError(client *hub.Client, err error) {
	code := domain.ErrorCode(err)
	message := err.Error()
	if code == "internal_error" {
		h.logger.Error("Internal error handling client message", "clientID", client.ID, "error", err)
		message = "an internal error occurred"
	}

	data, merr := events.Marshal(events.TypeError, events.ErrorPayload{
		Message: message,
		Code:    code,
	})
	if merr != nil {
		h.logger.Error("Failed to marshal error envelope", "error", merr)
		return
	}
	client.TrySend(data)
}

// rateLimiter is a token bucket refilled per second.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate int // tokens per second
	lastRefill time.Time
}

func newRateLimiter(maxTokens, refillRate int) *rateLimiter {
	return &rateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	tokensToAdd := int(now.Sub(r.lastRefill).Seconds()) * r.refillRate
	if tokensToAdd > 0 {
		r.tokens += tokensToAdd
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}
