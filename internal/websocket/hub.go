package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"medviewer-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries state frames between server instances.
const ClusterChannel = "viewer_events"

const (
	clusterBuffer  = 1024
	clusterTimeout = 2 * time.Second
)

// Message is one frame exchanged with a browser.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageHandler applies frames sent by clients to their session.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID string, msg Message) error
}

// Hub fans state deltas and render hints out to the clients watching a
// session. It is the remote observer the session state flushes to.
type Hub struct {
	// SessionID -> clients (several tabs may watch one session)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	// Frames waiting to be published on Redis, drained off the caller's goroutine
	cluster chan []byte

	mu sync.RWMutex

	handlerMu sync.RWMutex
	handler   MessageHandler

	// Redis connection for cross-instance communication
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		cluster:    make(chan []byte, clusterBuffer),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// SetHandler wires the service receiving client frames.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handler = handler
}

func (h *Hub) messageHandler() MessageHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.handler
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
		go h.publishToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID, "user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)

		case <-h.stop:
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// join registers client. It reports false once the hub is stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// leave unregisters client without blocking a stopped hub.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
		h.logger.Info("Hub", "Session has no clients left", map[string]interface{}{"session_id": client.SessionID})
	}
}

// PublishState sends a flushed state delta to the session's clients.
func (h *Hub) PublishState(sessionID string, delta map[string]interface{}) {
	h.publish(sessionID, "state", delta)
}

// PublishRender tells clients which views to fetch again.
func (h *Hub) PublishRender(sessionID string, views []string) {
	h.publish(sessionID, "render", map[string]interface{}{"views": views})
}

// PublishEvent forwards a viewer activity event.
func (h *Hub) PublishEvent(sessionID, eventType string, payload map[string]interface{}) {
	h.publish(sessionID, "event", map[string]interface{}{"type": eventType, "payload": payload})
}

func (h *Hub) publish(sessionID, msgType string, data interface{}) {
	frame, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode frame", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return
	}

	h.deliver(sessionID, frame)

	if h.rdb != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"session_id": sessionID,
			"origin":     h.instanceID,
			"message":    json.RawMessage(frame),
		})
		select {
		case h.cluster <- payload:
		default:
			h.logger.Warn("Hub", "Cluster buffer full, dropping frame", map[string]interface{}{"session_id": sessionID, "type": msgType})
		}
	}
}

// publishToRedis forwards queued frames to the other instances in order.
func (h *Hub) publishToRedis() {
	for {
		select {
		case payload := <-h.cluster:
			ctx, cancel := context.WithTimeout(context.Background(), clusterTimeout)
			if err := h.rdb.Publish(ctx, ClusterChannel, payload).Err(); err != nil {
				h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
			}
			cancel()
		case <-h.stop:
			return
		}
	}
}

// deliver sends frame to local clients only.
func (h *Hub) deliver(sessionID string, frame []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[sessionID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.enqueue(frame) {
			h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"session_id": sessionID})
			go h.leave(client)
		}
	}
}

// ClientCount reports the local clients watching sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// CloseSession disconnects every local client of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[sessionID]...)
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeConn()
	}
}

func (h *Hub) subscribeToRedis() {
	// Every instance subscribes to one channel and keeps the frames of the
	// sessions it has local clients for.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()
	go func() {
		<-h.stop
		pubsub.Close()
	}()

	for msg := range pubsub.Channel() {
		var payload struct {
			SessionID string          `json:"session_id"`
			Origin    string          `json:"origin"`
			Message   json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis frame parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.instanceID {
			continue
		}
		h.deliver(payload.SessionID, payload.Message)
	}
}
