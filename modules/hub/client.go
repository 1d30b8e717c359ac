package hub

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// sendQueueSize bounds each connection's outbound queue. A client that
// cannot drain its queue is closed rather than buffered without bound.
const sendQueueSize = 256

// Conn is the transport surface the hub needs from a WebSocket connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection. It belongs to exactly one user for its
// lifetime and is destroyed on disconnect. The hub owns its room set.
type Client struct {
	ID       string
	UserID   string
	UserName string

	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a transport connection for an authenticated user and
// starts its write pump.
func NewClient(conn Conn, userID, userName string) *Client {
	c := &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserName: userName,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
	go c.writePump()
	return c
}

// writePump drains the outbound queue onto the transport. A write failure
// closes the connection; the read loop then runs the disconnect path.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// TrySend enqueues data without blocking. It reports false when the queue
// is full; a closed client swallows the event and reports true.
func (c *Client) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the transport. Safe to call from
// any goroutine, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Closed reports whether the client has been closed.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
