// Package realtime fans console state changes out to attached UI tabs over
// WebSocket. The console is single-seat; all tabs see every stream they
// subscribe to, which is what keeps tabs consistent with each other.
package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/propdesk/agent-console/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16

	sendBufferSize = 64
)

// Message is the JSON payload delivered to subscribers.
type Message struct {
	Stream string      `json:"stream"`
	Event  string      `json:"event"`
	Data   interface{} `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// AttachObserver is notified whenever a client attaches, letting the console
// treat a new tab like a foreground transition and refresh pending items.
type AttachObserver func()

// Hub coordinates stream subscriptions for attached UI tabs.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*connection]struct{}
	onAttach      AttachObserver
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The console binds to loopback; cross-origin checks stay
			// permissive for packaged UI shells.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithModule("realtime"),
	}
}

// SetAttachObserver registers the attach callback. Must be called before
// Serve is reachable.
func (h *Hub) SetAttachObserver(fn AttachObserver) {
	h.onAttach = fn
}

// Serve upgrades the HTTP connection and subscribes the client. With no
// streams requested, the default set is applied.
func (h *Hub) Serve(streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	if len(streams) == 0 {
		streams = DefaultStreams()
	}

	client := &connection{
		hub:     h,
		socket:  conn,
		streams: make(map[string]struct{}),
		send:    make(chan Message, sendBufferSize),
	}
	h.subscribe(client, streams)

	if h.onAttach != nil {
		h.onAttach()
	}

	go client.writeLoop()
	client.readLoop()
}

// Broadcast delivers a message to every subscriber of its stream.
func (h *Hub) Broadcast(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	message.Stream = stream

	var stalled []*connection
	h.mu.RLock()
	for client := range h.subscriptions[stream] {
		select {
		case client.send <- message:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	// close() re-enters the hub lock through unregister, so stalled clients
	// are dropped only after the read lock is released.
	for _, client := range stalled {
		h.log.Warn("dropping backpressure client")
		client.close()
	}
}

// ClientCount reports how many connections subscribe to the stream.
func (h *Hub) ClientCount(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)])
}

func (h *Hub) subscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}
		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[*connection]struct{})
		}
		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		h.removeSubscriptionLocked(client, normalizeStream(stream))
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string) {
	if stream == "" {
		return
	}

	clients := h.subscriptions[stream]
	if clients == nil {
		return
	}

	delete(clients, client)
	delete(client.streams, stream)
	if len(clients) == 0 {
		delete(h.subscriptions, stream)
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	streams map[string]struct{}
	send    chan Message
	once    sync.Once
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
