package llm

import (
	"encoding/json"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// Aggregator turns one vendor's framed stream events into canonical chunks.
// An Aggregator holds the private state of a single stream and is not safe
// for concurrent use; every stream gets its own.
type Aggregator interface {
	// Apply processes one framed event to completion and returns the chunks
	// it emits, in order. A payload that cannot be decoded returns an error
	// and leaves the state untouched.
	Apply(payload json.RawMessage) ([]chunk.Chunk, error)

	// Flush closes any unit still open at the end of input.
	Flush() []chunk.Chunk
}
