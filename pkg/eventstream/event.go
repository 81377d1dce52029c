package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChunkEmitted is emitted for every canonical chunk of a stream.
	EventTypeChunkEmitted = "deltas.chunk.emitted"

	// EventTypeTranscriptStored is emitted after a finished turn is persisted.
	EventTypeTranscriptStored = "deltas.transcript.stored"
)

// EventSource identifies where the stream originated.
type EventSource struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ChunkEvent is a transport-neutral event payload for one emitted chunk.
// Seq counts emissions within the stream from 1.
type ChunkEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	StreamID      string         `json:"stream_id"`
	Seq           int            `json:"seq"`
	Source        EventSource    `json:"source"`
	Chunk         chunk.Envelope `json:"chunk"`
}

// NewChunkEvent builds a ChunkEvent stamped with a fresh event id.
func NewChunkEvent(streamID string, seq int, src EventSource, c chunk.Chunk) *ChunkEvent {
	return &ChunkEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeChunkEmitted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		StreamID:      streamID,
		Seq:           seq,
		Source:        src,
		Chunk:         chunk.Wrap(c),
	}
}

// TranscriptMeta captures request lifecycle metadata for the event.
type TranscriptMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Units       int       `json:"units"`
	Skipped     int       `json:"skipped"`
}

// TranscriptEvent is a transport-neutral event payload for a stored transcript.
type TranscriptEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Source        EventSource         `json:"source"`
	Meta          TranscriptMeta      `json:"meta"`
	Transcript    *storage.Transcript `json:"transcript"`
}

// NewTranscriptEvent builds a TranscriptEvent for t.
func NewTranscriptEvent(t *storage.Transcript) *TranscriptEvent {
	return &TranscriptEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTranscriptStored,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Provider: t.Provider,
			Model:    t.Model,
		},
		Meta: TranscriptMeta{
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
			DurationMs:  t.Duration().Milliseconds(),
			Units:       len(t.Chunks),
			Skipped:     t.Skipped,
		},
		Transcript: t,
	}
}
