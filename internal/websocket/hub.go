package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// HubConfig contains connection timing and limits
type HubConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	HeartbeatInterval time.Duration
	// AllowedOrigins restricts browser origins; empty or "*" allows any
	AllowedOrigins []string
}

// DefaultHubConfig returns the default connection settings
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:      54 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    512,
		HeartbeatInterval: 30 * time.Second,
	}
}

type outbound struct {
	category string
	data     []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	cfg HubConfig

	// Registered clients
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *logrus.Logger

	mu sync.RWMutex

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	lastActivity     atomic.Int64
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(cfg HubConfig, logger *logrus.Logger) *Hub {
	defaults := DefaultHubConfig()
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = (cfg.PongTimeout * 9) / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}

	h := &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
	h.touch()
	return h
}

// Run handles client registration and broadcasting until ctx is done, then
// disconnects every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) touch() {
	h.lastActivity.Store(time.Now().UnixMilli())
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.totalConnections.Add(1)
	h.touch()
	metrics.WebsocketConnections.Set(float64(count))

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"remote_addr":       client.RemoteAddr,
		"connected_clients": count,
	}).Info("WebSocket client connected")

	client.enqueue(Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}.ToJSON())
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	client.close()
	h.touch()
	metrics.WebsocketConnections.Set(float64(count))

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": count,
	}).Info("WebSocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	metrics.WebsocketConnections.Set(0)
}

func (h *Hub) broadcastMessage(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.IsSubscribed(msg.category) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.messagesSent.Add(1)
	h.touch()

	for _, client := range clients {
		if !client.enqueue(msg.data) {
			// Slow consumer
			h.unregisterClient(client)
		}
	}

	h.logger.WithFields(logrus.Fields{
		"category":     msg.category,
		"message_size": len(msg.data),
		"clients_sent": len(clients),
	}).Debug("Message broadcasted to WebSocket clients")
}

func (h *Hub) sendHeartbeat() {
	h.broadcastMessage(outbound{data: Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{"clients": h.GetClientCount()},
	}.ToJSON()})
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel is full, message dropped")
	}
}

// BroadcastToAll broadcasts a message to all connected clients
func (h *Hub) BroadcastToAll(message Message) {
	h.enqueue(outbound{data: message.ToJSON()})
}

// BroadcastToCategory sends a message to clients subscribed to category.
// Clients without category filters receive everything, and an empty
// category reaches every client.
func (h *Hub) BroadcastToCategory(category, msgType string, data interface{}) {
	h.enqueue(outbound{
		category: category,
		data: Message{
			Type:     msgType,
			Category: category,
			Data:     data,
		}.ToJSON(),
	})
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	return &HubStats{
		ConnectedClients: h.GetClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesReceived: h.messagesReceived.Load(),
		LastActivity:     time.UnixMilli(h.lastActivity.Load()).UTC(),
	}
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClientByID returns a client by its ID, or nil if not found
func (h *Hub) GetClientByID(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return client
		}
	}
	return nil
}
