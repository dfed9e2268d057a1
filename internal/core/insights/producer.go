package insights

import (
	"context"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

// Producer is one independent analysis source
type Producer interface {
	ID() string
	Analyze(ctx context.Context) ([]alerts.Insight, error)
}

type funcProducer struct {
	id string
	fn func(ctx context.Context) ([]alerts.Insight, error)
}

// ProducerFunc adapts a function to the Producer interface
func ProducerFunc(id string, fn func(ctx context.Context) ([]alerts.Insight, error)) Producer {
	return &funcProducer{id: id, fn: fn}
}

func (p *funcProducer) ID() string { return p.id }

func (p *funcProducer) Analyze(ctx context.Context) ([]alerts.Insight, error) {
	return p.fn(ctx)
}
