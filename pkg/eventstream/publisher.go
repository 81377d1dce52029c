package eventstream

import "context"

// Publisher publishes stream events to an event stream backend.
type Publisher interface {
	PublishChunk(ctx context.Context, event *ChunkEvent) error
	PublishTranscript(ctx context.Context, event *TranscriptEvent) error
	Close() error
}
