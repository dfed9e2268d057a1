package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// AllTopics subscribes a handler to every topic
const AllTopics = "*"

// Handler receives one published payload. Returned errors are logged, never
// propagated to the publisher.
type Handler func(ctx context.Context, topic string, payload interface{}) error

// Publisher is the publishing side of a Channel
type Publisher interface {
	Publish(topic string, payload interface{})
}

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Channel is an in-process publish/subscribe fan-out. Delivery is
// best-effort: every handler runs on its own goroutine and ordering across
// publishes is not guaranteed.
type Channel struct {
	logger         *logrus.Logger
	handlerTimeout time.Duration

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	closed bool

	inflight sync.WaitGroup
}

// NewChannel creates a new notification channel. handlerTimeout bounds the
// context given to each handler; zero means 10 seconds.
func NewChannel(logger *logrus.Logger, handlerTimeout time.Duration) *Channel {
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}
	return &Channel{
		logger:         logger,
		handlerTimeout: handlerTimeout,
		subs:           make(map[string][]subscription),
	}
}

// Subscribe registers handler for topic (or AllTopics) under a descriptive
// name. The returned function removes the subscription.
func (c *Channel) Subscribe(topic, name string, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs[topic] = append(c.subs[topic], subscription{id: id, name: name, handler: handler})

	c.logger.WithFields(logrus.Fields{
		"topic":   topic,
		"handler": name,
	}).Debug("Notification handler subscribed")

	return func() { c.unsubscribe(topic, id) }
}

func (c *Channel) unsubscribe(topic string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.subs[topic]
	for i, s := range subs {
		if s.id == id {
			c.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[topic]) == 0 {
		delete(c.subs, topic)
	}
}

// Publish hands payload to every handler subscribed to topic or AllTopics
// and returns immediately
func (c *Channel) Publish(topic string, payload interface{}) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	targets := make([]subscription, 0, len(c.subs[topic])+len(c.subs[AllTopics]))
	targets = append(targets, c.subs[topic]...)
	if topic != AllTopics {
		targets = append(targets, c.subs[AllTopics]...)
	}
	c.inflight.Add(len(targets))
	c.mu.RUnlock()

	if len(targets) == 0 {
		metrics.NotificationsTotal.WithLabelValues(topic, "no_subscribers").Inc()
		return
	}

	for _, sub := range targets {
		go c.deliver(topic, sub, payload)
	}
}

func (c *Channel) deliver(topic string, sub subscription, payload interface{}) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.handlerTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
				c.logger.WithField("stack", string(debug.Stack())).Debug("Notification handler stack")
			}
		}()
		return sub.handler(ctx, topic, payload)
	}()

	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(topic, "error").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"topic":   topic,
			"handler": sub.name,
		}).Warn("Notification handler failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(topic, "delivered").Inc()
}

// Wait blocks until every handler started so far has returned
func (c *Channel) Wait() {
	c.inflight.Wait()
}

// Close stops accepting publishes and waits for running handlers until ctx
// is done
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Topics returns the subscribed topics with their handler names
func (c *Channel) Topics() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]string, len(c.subs))
	for topic, subs := range c.subs {
		names := make([]string, len(subs))
		for i, s := range subs {
			names[i] = s.name
		}
		sort.Strings(names)
		out[topic] = names
	}
	return out
}
