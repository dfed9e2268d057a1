package websocket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message types for WebSocket communication
const (
	MessageTypeConnection         = "connection"
	MessageTypeHeartbeat          = "heartbeat"
	MessageTypePong               = "pong"
	MessageTypeError              = "error"
	MessageTypeSubscriptionUpdate = "subscription_update"

	// Client requests
	MessageTypePing                = "ping"
	MessageTypeSubscribeCategory   = "subscribe_category"
	MessageTypeUnsubscribeCategory = "unsubscribe_category"
)

// Message represents a WebSocket message. Alert lifecycle events use their
// notification topic ("alerts.raised", "insights.accepted") as the type.
type Message struct {
	Type      string      `json:"type"`
	Category  string      `json:"category,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, _ := json.Marshal(m)
	return data
}

// Field returns a string field of an object payload
func (m Message) Field(name string) string {
	obj, ok := m.Data.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := obj[name].(string)
	return s
}

// UnmarshalJSON accepts RFC3339 timestamps as well as unix seconds or
// milliseconds, either as numbers or strings. A missing timestamp is set to
// the current time.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string          `json:"type"`
		Category  string          `json:"category"`
		Data      interface{}     `json:"data"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Type = raw.Type
	m.Category = raw.Category
	m.Data = raw.Data
	m.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

func parseTimestamp(raw json.RawMessage) time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Now().UTC()
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Values past the year 2286 in seconds are treated as milliseconds
		if n > 9999999999 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// ErrorMessage creates an error reply for a client request
func ErrorMessage(reason string) Message {
	return Message{
		Type: MessageTypeError,
		Data: map[string]interface{}{"error": reason},
	}
}

// SubscriptionMessage reports the categories a client receives. An empty
// list means every category.
func SubscriptionMessage(categories []string) Message {
	return Message{
		Type: MessageTypeSubscriptionUpdate,
		Data: map[string]interface{}{"categories": categories},
	}
}
