package nop

import (
	"context"

	"github.com/papercomputeco/deltas/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishChunk validates input and otherwise does nothing.
func (p *Publisher) PublishChunk(_ context.Context, event *eventstream.ChunkEvent) error {
	if event == nil {
		return eventstream.ErrNilChunkEvent
	}

	return nil
}

// PublishTranscript validates input and otherwise does nothing.
func (p *Publisher) PublishTranscript(_ context.Context, event *eventstream.TranscriptEvent) error {
	if event == nil {
		return eventstream.ErrNilTranscriptEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
