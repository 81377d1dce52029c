package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrInvalidRequest is wrapped by every ChatRequest validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// reservedFields are body keys owned by named ChatRequest fields or by the
// transport itself. Extra may not set them.
var reservedFields = []string{
	"model",
	"messages",
	"system",
	"stream",
	"stream_options",
	"max_tokens",
	"temperature",
	"top_p",
	"top_k",
	"stop",
	"seed",
	"tools",
}

// ChatRequest represents a provider-agnostic streaming chat completion request.
// Vendor encoders translate it into their own body shape.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "claude-sonnet-4-5", "llama3.2")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// System prompt (some providers handle this separately from messages)
	System string `json:"system,omitempty"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// Tools the model may call
	Tools []Tool `json:"tools,omitempty"`

	// Extra holds forward-compatible vendor fields that have no named field.
	// Keys are merged into the top level of the encoded body.
	Extra map[string]any `json:"extra,omitempty"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Ptr returns a pointer to v, for filling optional request fields.
func Ptr[T any](v T) *T {
	return &v
}

// Validate checks the request at the boundary, before anything is encoded.
func (r *ChatRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}

	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}

	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidRequest, *r.MaxTokens)
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %g", ErrInvalidRequest, *r.Temperature)
	}

	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return fmt.Errorf("%w: top_p must be within [0, 1], got %g", ErrInvalidRequest, *r.TopP)
	}

	if r.TopK != nil && *r.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidRequest, *r.TopK)
	}

	for i, tool := range r.Tools {
		if tool.Name == "" {
			return fmt.Errorf("%w: tool %d has no name", ErrInvalidRequest, i)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(r.Extra)) {
		if slices.Contains(reservedFields, key) {
			return fmt.Errorf("%w: extra field %q shadows a named field", ErrInvalidRequest, key)
		}
	}

	return nil
}

// MergeExtra copies Extra into an encoded body. Keys already present in the
// body win.
func (r *ChatRequest) MergeExtra(body map[string]any) {
	for k, v := range r.Extra {
		if _, exists := body[k]; exists {
			continue
		}
		body[k] = v
	}
}

// EncodeBody marshals a vendor request body and merges Extra into its top
// level.
func (r *ChatRequest) EncodeBody(body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	if len(r.Extra) == 0 {
		return raw, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("merging extra fields: %w", err)
	}
	r.MergeExtra(fields)

	return json.Marshal(fields)
}
