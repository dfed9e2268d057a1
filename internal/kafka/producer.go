package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
)

// ErrProducerClosed is returned by Publish after Close
var ErrProducerClosed = errors.New("producer is closed")

// Writer is the subset of kafka.Writer used by the producer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Options configures a Producer
type Options struct {
	Brokers      []string
	Topic        string
	Compression  string
	MaxAttempts  int
	RetryBackoff time.Duration
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// OptionsFromConfig converts the kafka configuration section
func OptionsFromConfig(cfg config.KafkaConfig) Options {
	return Options{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Compression:  cfg.Compression,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: config.ParseDuration(cfg.BatchTimeout, 50*time.Millisecond),
		WriteTimeout: config.ParseDuration(cfg.WriteTimeout, 10*time.Second),
	}
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithWriter replaces the kafka writer
func WithWriter(w Writer) ProducerOption {
	return func(p *Producer) {
		p.writer = w
	}
}

// Producer writes alert events to a Kafka topic, keyed so that events of one
// alert land on the same partition
type Producer struct {
	opts   Options
	writer Writer
	logger *logrus.Logger
	closed atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// NewProducer creates a new Kafka producer
func NewProducer(opts Options, logger *logrus.Logger, options ...ProducerOption) (*Producer, error) {
	if opts.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}

	p := &Producer{
		opts:   opts,
		logger: logger,
	}
	for _, opt := range options {
		opt(p)
	}

	if p.writer == nil {
		if len(opts.Brokers) == 0 {
			return nil, errors.New("at least one broker is required")
		}
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: opts.BatchTimeout,
			WriteTimeout: opts.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
			Compression:  compression(opts.Compression),
			// Retries are handled by Publish
			MaxAttempts: 1,
		}
	}

	return p, nil
}

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Publish writes one message, retrying with exponential backoff
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.publishWithRetry(ctx, msg); err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(value)))
	metrics.KafkaPublishTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *Producer) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	backoff := p.opts.RetryBackoff

	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.KafkaPublishRetries.Inc()
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		p.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"key":     string(msg.Key),
		}).Warn("Kafka publish attempt failed")
	}

	return fmt.Errorf("failed after %d attempts: %w", p.opts.MaxAttempts, lastErr)
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}
