package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, cfg HubConfig) (*Hub, *httptest.Server) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	hub := NewHub(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r)
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, MessageTypeConnection, welcome.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data map[string]interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	require.Eventually(t, func() bool { return hub.GetClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastToAll(t *testing.T) {
	hub, server := newTestHub(t, HubConfig{})
	a := dial(t, server, "")
	b := dial(t, server, "")
	waitForClients(t, hub, 2)

	hub.BroadcastToAll(Message{Type: "system_status", Data: map[string]interface{}{"status": "ok"}})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "system_status", msg.Type)
		assert.Equal(t, "ok", msg.Field("status"))
	}
}

func TestHub_CategorySubscription(t *testing.T) {
	hub, server := newTestHub(t, HubConfig{})
	filtered := dial(t, server, "")
	unfiltered := dial(t, server, "")
	waitForClients(t, hub, 2)

	send(t, filtered, MessageTypeSubscribeCategory, map[string]interface{}{"category": "pricing"})
	ack := readMessage(t, filtered)
	require.Equal(t, MessageTypeSubscriptionUpdate, ack.Type)
	assert.Equal(t, []interface{}{"pricing"}, ack.Data.(map[string]interface{})["categories"])

	hub.BroadcastToCategory("operations", "alerts.raised", map[string]string{"id": "ops-1"})
	hub.BroadcastToCategory("pricing", "alerts.raised", map[string]string{"id": "price-1"})

	msg := readMessage(t, filtered)
	assert.Equal(t, "pricing", msg.Category)
	assert.Equal(t, "price-1", msg.Field("id"))

	first := readMessage(t, unfiltered)
	second := readMessage(t, unfiltered)
	assert.Equal(t, "ops-1", first.Field("id"))
	assert.Equal(t, "price-1", second.Field("id"))

	// Uncategorised messages reach filtered clients too
	hub.BroadcastToCategory("", "insights.accepted", map[string]string{"id": "i-1"})
	assert.Equal(t, "i-1", readMessage(t, filtered).Field("id"))

	send(t, filtered, MessageTypeUnsubscribeCategory, map[string]interface{}{"category": "pricing"})
	ack = readMessage(t, filtered)
	assert.Empty(t, ack.Data.(map[string]interface{})["categories"])

	hub.BroadcastToCategory("operations", "alerts.updated", map[string]string{"id": "ops-1"})
	assert.Equal(t, "alerts.updated", readMessage(t, filtered).Type)
}

func TestHub_QueryCategories(t *testing.T) {
	hub, server := newTestHub(t, HubConfig{})
	conn := dial(t, server, "?categories=forecasting,%20data_quality")
	waitForClients(t, hub, 1)

	hub.BroadcastToCategory("operations", "alerts.raised", map[string]string{"id": "ops-1"})
	hub.BroadcastToCategory("data_quality", "alerts.raised", map[string]string{"id": "dq-1"})

	assert.Equal(t, "dq-1", readMessage(t, conn).Field("id"))
}

func TestClient_Requests(t *testing.T) {
	hub, server := newTestHub(t, HubConfig{})
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	send(t, conn, MessageTypePing, nil)
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	send(t, conn, MessageTypeSubscribeCategory, map[string]interface{}{})
	reply := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, "category is required", reply.Field("error"))

	send(t, conn, "launch_rockets", nil)
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid message", readMessage(t, conn).Field("error"))

	assert.Eventually(t, func() bool { return hub.GetStats().MessagesReceived == 4 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Disconnect(t *testing.T) {
	hub, server := newTestHub(t, HubConfig{})
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.TotalConnections)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)
	assert.Equal(t, int64(1), hub.GetStats().TotalConnections)
}

func TestHub_Heartbeat(t *testing.T) {
	_, server := newTestHub(t, HubConfig{HeartbeatInterval: 50 * time.Millisecond})
	conn := dial(t, server, "")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeHeartbeat, msg.Type)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(HubConfig{AllowedOrigins: []string{"https://rm.example.com"}}, logrus.New())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://RM.example.com")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, hub.checkOrigin(req))

	open := NewHub(HubConfig{AllowedOrigins: []string{"*"}}, logrus.New())
	assert.True(t, open.checkOrigin(req))
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(HubConfig{PongTimeout: 10 * time.Second, PingInterval: 20 * time.Second}, logrus.New())

	assert.Equal(t, 9*time.Second, hub.cfg.PingInterval)
	assert.Equal(t, int64(512), hub.cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Second, hub.cfg.WriteTimeout)
}
