package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

// Broadcaster pushes messages to connected dashboard clients
type Broadcaster interface {
	BroadcastToCategory(category, msgType string, data interface{})
}

// MessageWriter writes keyed messages to an event stream
type MessageWriter interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// WebsocketSink forwards alert events to dashboard clients subscribed to the
// alert's category
func WebsocketSink(b Broadcaster) Handler {
	return func(ctx context.Context, topic string, payload interface{}) error {
		switch p := payload.(type) {
		case alerts.Event:
			category := ""
			if p.Alert != nil {
				category = p.Alert.Category
			}
			b.BroadcastToCategory(category, topic, p)
		default:
			b.BroadcastToCategory("", topic, payload)
		}
		return nil
	}
}

// KafkaSink writes events as JSON keyed by their partition key so events of
// one alert stay ordered within a partition
func KafkaSink(w MessageWriter) Handler {
	return func(ctx context.Context, topic string, payload interface{}) error {
		value, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", topic, err)
		}

		key := topic
		if keyed, ok := payload.(interface{ PartitionKey() string }); ok && keyed.PartitionKey() != "" {
			key = keyed.PartitionKey()
		}

		return w.Publish(ctx, key, value, map[string]string{
			"topic":        topic,
			"content-type": "application/json",
		})
	}
}

// LogSink writes a structured log line for every event
func LogSink(logger *logrus.Logger) Handler {
	return func(ctx context.Context, topic string, payload interface{}) error {
		fields := logrus.Fields{"topic": topic}
		if e, ok := payload.(alerts.Event); ok && e.Alert != nil {
			fields["alert_id"] = e.Alert.ID
			fields["key"] = e.Alert.Key
			fields["severity"] = e.Alert.Severity
			fields["state"] = e.Alert.State
		}
		logger.WithFields(fields).Info("Notification")
		return nil
	}
}
