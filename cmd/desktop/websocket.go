// Package main provides WebSocket server for real-time events (desktop only).
package main

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/fieldsync/internal/logging"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isLocalOrigin,
}

// isLocalOrigin only admits connections addressed to the loopback host.
func isLocalOrigin(r *http.Request) bool {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	mu            sync.RWMutex
	subscriptions map[string]bool
}

// wants reports whether the client receives eventType. A client with no
// subscriptions receives everything.
func (c *WSClient) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// WSHub maintains active client connections and broadcasts messages.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan outbound
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type outbound struct {
	eventType string
	payload   []byte
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// =====================================================
// WebSocket Event Types
// =====================================================

const (
	// Drain events
	EventSyncStarted   = string(syncpkg.EventDrainStarted)
	EventSyncCompleted = string(syncpkg.EventDrainCompleted)
	EventSyncFailed    = string(syncpkg.EventDrainFailed)
	EventSyncSkipped   = string(syncpkg.EventDrainSkipped)

	// Record events
	EventRecordQueued    = string(syncpkg.EventRecordQueued)
	EventRecordSubmitted = string(syncpkg.EventRecordSent)

	// Device state events
	EventConnectivityChanged = "connectivity.changed"
	EventPendingUpdated      = "pending.updated"
)

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// run manages client connections and broadcasts.
func (h *WSHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected", map[string]interface{}{
				"client_id": client.id,
				"total":     total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected", map[string]interface{}{
				"client_id": client.id,
				"total":     total,
			})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.eventType) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the hub.
func (h *WSHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast sends a message to all subscribed clients.
func (h *WSHub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal WebSocket message", err, map[string]interface{}{
			"type": messageType,
		})
		return
	}

	select {
	case h.broadcast <- outbound{eventType: messageType, payload: bytes}:
	case <-h.done:
	}
}

// =====================================================
// Sync Event Broadcasters
// =====================================================

// OnSyncEvent implements syncpkg.SyncEventHandler.
func (h *WSHub) OnSyncEvent(event syncpkg.SyncEvent) {
	data := map[string]interface{}{}
	if event.Queue != "" {
		data["queue"] = event.Queue
	}
	if event.RecordID != "" {
		data["record_id"] = event.RecordID
	}
	if event.Error != "" {
		data["error"] = event.Error
	}
	if r := event.Result; r != nil {
		data["visits_succeeded"] = r.VisitsSucceeded
		data["visits_failed"] = r.VisitsFailed
		data["locations_succeeded"] = r.LocationsSucceeded
		data["locations_failed"] = r.LocationsFailed
		data["rejected"] = r.Rejected
		data["success"] = r.Success
		data["message"] = r.Message
		data["duration"] = r.Duration.Milliseconds()
	}
	h.Broadcast(string(event.Type), data)
}

// BroadcastConnectivity notifies clients that the device went online or
// offline.
func (h *WSHub) BroadcastConnectivity(online bool) {
	h.Broadcast(EventConnectivityChanged, map[string]interface{}{
		"is_online": online,
	})
}

// BroadcastPending notifies clients of the current pending counts.
func (h *WSHub) BroadcastPending(counts queue.Counts) {
	h.Broadcast(EventPendingUpdated, map[string]interface{}{
		"visits":    counts.Visits,
		"locations": counts.Locations,
		"total":     counts.Total(),
	})
}

// readPump pumps messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("WebSocket read error", map[string]interface{}{
					"client_id": c.id,
					"error":     err.Error(),
				})
			}
			break
		}

		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			logging.Debug("Invalid WebSocket message", map[string]interface{}{"client_id": c.id})
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})

		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()

		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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

// reply queues a control message for this client only. It is dropped if
// the client is being torn down.
func (c *WSClient) reply(msg map[string]interface{}) {
	msg["timestamp"] = time.Now().Unix()
	bytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- bytes:
	default:
	}
}

// HandleWebSocket handles WebSocket connections.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
			return
		}

		client := &WSClient{
			id:            uuid.New(),
			conn:          conn,
			send:          make(chan []byte, sendBuffer),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
