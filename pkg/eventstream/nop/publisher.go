package nop

import (
	"context"

	"github.com/papercomputeco/memstate/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishBatch validates input and otherwise does nothing.
func (p *Publisher) PublishBatch(_ context.Context, event *eventstream.BatchAppliedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
