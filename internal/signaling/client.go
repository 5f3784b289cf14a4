package signaling

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live websocket connection. The connection-to-room-to-user
// mapping lives here and nowhere else; it dies with the connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	mu     sync.Mutex
	send   chan []byte
	closed bool
	roomID string
}

func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// enqueue hands a frame to the write pump. A client that cannot keep up has
// its frame dropped rather than stalling the whole room, and a frame for a
// client already shut down is discarded.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.log.Warn().Stringer("user_id", c.userID).Msg("dropping frame for slow client")
	}
}

func (c *Client) sendEvent(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.hub.log.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.hub.log.Error().Err(err).Str("event", event).Msg("marshal envelope")
		return
	}
	c.enqueue(msg)
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, ErrorPayload{Message: message})
}

// shutdown closes the send channel exactly once, under the same lock enqueue
// takes, so a frame dispatched after the close is discarded instead of
// panicking. The write pump drains what is queued, emits a close frame, and
// tears the connection down.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.shutdown()
		_ = c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.sendError("malformed message")
			continue
		}

		c.hub.dispatch(c, env)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
