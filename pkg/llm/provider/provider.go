// Package provider defines the vendor adapter capability and the registry of
// supported vendors. Adding a vendor means adding a subpackage that satisfies
// Provider; the framer and the chunk model stay untouched.
package provider

import (
	"net/http"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/sse"
)

// Aggregator is the per-stream state machine a Provider hands out.
type Aggregator = llm.Aggregator

// Provider adapts one vendor's streaming chat API.
type Provider interface {
	// Name returns the canonical provider name (e.g., "anthropic", "openai", "ollama")
	Name() string

	// Framing returns how the vendor separates stream events.
	Framing() sse.Framing

	// DefaultEndpoint is the streaming endpoint used when none is configured.
	DefaultEndpoint() string

	// DefaultModel is the model used when none is configured.
	DefaultModel() string

	// CanHandle returns true if the payload appears to be for this provider.
	// Implementations should check for provider-specific markers in the JSON
	// such as field names, model name patterns, or stream event structure.
	CanHandle(payload []byte) bool

	// EncodeRequest converts the internal request into the vendor's
	// streaming request body.
	EncodeRequest(req *llm.ChatRequest) ([]byte, error)

	// Authorize sets the vendor's credential headers.
	Authorize(h http.Header, apiKey string)

	// NewAggregator returns fresh aggregation state for one stream.
	NewAggregator(ids chunk.IDSource) Aggregator
}
