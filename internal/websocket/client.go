package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	handleTimeout  = 5 * time.Second
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection. Nil for clients fed by tests.
	Conn *websocket.Conn

	SessionID string
	UserID    string

	// Buffered channel of outbound messages.
	Send chan []byte

	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID string) *Client {
	return &Client{Hub: hub, Conn: conn, SessionID: sessionID, UserID: userID, Send: make(chan []byte, 256)}
}

func (c *Client) enqueue(frame []byte) (ok bool) {
	defer func() {
		// Send may have been closed by a concurrent unregister.
		if recover() != nil {
			ok = true
		}
	}()
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// readPump feeds client frames to the hub's message handler.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.closeConn()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
			}
			break
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.replyError("malformed frame")
		return
	}
	if msg.Type == "ping" {
		c.enqueue([]byte(`{"type":"pong"}`))
		return
	}
	handler := c.Hub.messageHandler()
	if handler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := handler.HandleMessage(ctx, c.SessionID, msg); err != nil {
		c.replyError(err.Error())
	}
}

func (c *Client) replyError(message string) {
	frame, _ := json.Marshal(map[string]interface{}{
		"type": "error",
		"data": map[string]string{"message": message},
	})
	c.enqueue(frame)
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per message; clients parse each frame as a JSON object.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
