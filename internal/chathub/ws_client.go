package chathub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketSession implements Session over a gorilla/websocket connection.
type WebSocketSession struct {
	id       string
	identity string
	roomID   uint

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketSession wraps an upgraded connection for the given room and identity.
func (h *Hub) NewWebSocketSession(conn *websocket.Conn, roomID uint, identity string) *WebSocketSession {
	return &WebSocketSession{
		id:       uuid.NewString(),
		identity: identity,
		roomID:   roomID,
		conn:     conn,
		hub:      h,
		send:     make(chan []byte, h.opts.SendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketSession) ID() string       { return c.id }
func (c *WebSocketSession) Identity() string { return c.identity }
func (c *WebSocketSession) RoomID() uint     { return c.roomID }

// Send queues a frame. A full buffer means the client stopped reading; the
// session is closed and its read pump unregisters it.
func (c *WebSocketSession) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		c.Close()
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketSession) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Run registers the session and starts its pumps.
func (c *WebSocketSession) Run() {
	c.hub.Attach(c)
	go c.writePump()
	go c.readPump()
}

func (c *WebSocketSession) readPump() {
	defer func() {
		c.hub.Detach(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("unexpected close", "session_id", c.id, "error", err)
			}
			return
		}

		if err := c.hub.HandleFrame(context.Background(), c, message); err != nil {
			c.hub.logFrameError(c, err)
		}
	}
}

// writePump writes queued frames one WebSocket message each and keeps the
// connection alive with pings.
func (c *WebSocketSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
