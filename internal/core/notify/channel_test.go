package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

func newTestChannel() *Channel {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewChannel(logger, time.Second)
}

func TestChannel_PublishFansOut(t *testing.T) {
	c := newTestChannel()

	var topicHits, allHits int32
	c.Subscribe("alerts.raised", "topic", func(ctx context.Context, topic string, payload interface{}) error {
		atomic.AddInt32(&topicHits, 1)
		return nil
	})
	c.Subscribe(AllTopics, "all", func(ctx context.Context, topic string, payload interface{}) error {
		atomic.AddInt32(&allHits, 1)
		return nil
	})

	c.Publish("alerts.raised", "a")
	c.Publish("alerts.resolved", "b")
	c.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&topicHits))
	assert.Equal(t, int32(2), atomic.LoadInt32(&allHits))
}

func TestChannel_HandlerFailuresAreIsolated(t *testing.T) {
	c := newTestChannel()

	var delivered int32
	c.Subscribe("t", "panics", func(ctx context.Context, topic string, payload interface{}) error {
		panic("boom")
	})
	c.Subscribe("t", "errors", func(ctx context.Context, topic string, payload interface{}) error {
		return errors.New("broker down")
	})
	c.Subscribe("t", "works", func(ctx context.Context, topic string, payload interface{}) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	assert.NotPanics(t, func() { c.Publish("t", 1) })
	c.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
}

func TestChannel_PublishDoesNotBlockOnSlowHandler(t *testing.T) {
	c := newTestChannel()
	release := make(chan struct{})
	c.Subscribe("t", "slow", func(ctx context.Context, topic string, payload interface{}) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		c.Publish("t", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on handler")
	}
	close(release)
	c.Wait()
}

func TestChannel_Unsubscribe(t *testing.T) {
	c := newTestChannel()
	var hits int32
	unsubscribe := c.Subscribe("t", "h", func(ctx context.Context, topic string, payload interface{}) error {
		atomic.AddInt32(&hits, 1)
		return nil
	})

	c.Publish("t", nil)
	c.Wait()
	unsubscribe()
	c.Publish("t", nil)
	c.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Empty(t, c.Topics())
}

func TestChannel_NoSubscribersAndClose(t *testing.T) {
	c := newTestChannel()
	assert.NotPanics(t, func() { c.Publish("nobody", 1) })

	var hits int32
	c.Subscribe("t", "h", func(ctx context.Context, topic string, payload interface{}) error {
		atomic.AddInt32(&hits, 1)
		return nil
	})
	require.NoError(t, c.Close(context.Background()))
	c.Publish("t", nil)
	c.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []string
}

func (b *recordingBroadcaster) BroadcastToCategory(category, msgType string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, category+"|"+msgType)
}

type recordingWriter struct {
	key     string
	value   []byte
	headers map[string]string
}

func (w *recordingWriter) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	w.key, w.value, w.headers = key, value, headers
	return nil
}

func TestSinks(t *testing.T) {
	event := alerts.Event{
		Transition: alerts.TransitionRaised,
		Alert:      &alerts.Alert{ID: "id-1", Key: "metric:system_availability", Category: "operations", Severity: alerts.SeverityCritical},
		At:         time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()

	b := &recordingBroadcaster{}
	require.NoError(t, WebsocketSink(b)(ctx, event.Topic(), event))
	assert.Equal(t, []string{"operations|alerts.raised"}, b.calls)

	w := &recordingWriter{}
	require.NoError(t, KafkaSink(w)(ctx, event.Topic(), event))
	assert.Equal(t, "metric:system_availability", w.key)
	assert.Equal(t, "alerts.raised", w.headers["topic"])

	var decoded alerts.Event
	require.NoError(t, json.Unmarshal(w.value, &decoded))
	assert.Equal(t, "id-1", decoded.Alert.ID)

	// Payloads without a partition key fall back to the topic
	require.NoError(t, KafkaSink(w)(ctx, "insights.accepted", map[string]string{"title": "x"}))
	assert.Equal(t, "insights.accepted", w.key)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	assert.NoError(t, LogSink(logger)(ctx, event.Topic(), event))
}
