package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches conn to sessionID and blocks until the peer goes away.
func ServeWs(hub *Hub, conn *websocket.Conn, sessionID, userID string) {
	client := NewClient(hub, conn, sessionID, userID)
	if !hub.join(client) {
		client.closeConn()
		return
	}

	go client.writePump()
	client.readPump()
}
