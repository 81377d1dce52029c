package openai

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// State is the aggregation state between two events: the single open unit.
type State struct {
	Slot chunk.Slot
}

// Step processes one event to completion. The steps run in a fixed order and
// all applicable ones execute: usage, finish, then the delta's text content
// or, failing that, its first tool call increment.
func Step(s State, ev Event, ids chunk.IDSource) (State, []chunk.Chunk) {
	var out []chunk.Chunk

	if ev.Usage != nil {
		out = append(out, chunk.Usage{
			ID:               ids(),
			PromptTokens:     ev.Usage.PromptTokens,
			CompletionTokens: ev.Usage.CompletionTokens,
			TotalTokens:      ev.Usage.TotalTokens,
		})
	}

	if len(ev.Choices) == 0 {
		return s, out
	}
	choice := ev.Choices[0]

	if choice.FinishReason != "" {
		var closed []chunk.Chunk
		s.Slot, closed = s.Slot.Close()
		out = append(out, closed...)
		out = append(out, chunk.Finish{ID: ids(), Reason: MapFinishReason(choice.FinishReason)})
	}

	delta := choice.Delta
	if delta == nil {
		return s, out
	}

	switch {
	case delta.Content != "":
		var emitted []chunk.Chunk
		s, emitted = appendText(s, delta.Content, ids)
		out = append(out, emitted...)

	case len(delta.ToolCalls) > 0:
		// Vendors send one increment per event; later elements are ignored.
		var emitted []chunk.Chunk
		s, emitted = appendToolCall(s, delta.ToolCalls[0], ids)
		out = append(out, emitted...)
	}

	return s, out
}

// Flush closes the unit still open at the end of input.
func Flush(s State) (State, []chunk.Chunk) {
	var out []chunk.Chunk
	s.Slot, out = s.Slot.Close()
	return s, out
}

func appendText(s State, content string, ids chunk.IDSource) (State, []chunk.Chunk) {
	var out []chunk.Chunk

	text, ok := s.Slot.Text()
	if !ok {
		text = chunk.Text{ID: ids()}
		s.Slot, out = s.Slot.Replace(text)
	}

	text.Text += content

	var emitted chunk.Chunk
	s.Slot, emitted = s.Slot.Update(text)
	return s, append(out, emitted)
}

func appendToolCall(s State, inc ToolCallDelta, ids chunk.IDSource) (State, []chunk.Chunk) {
	var out []chunk.Chunk

	// The id is fixed when the call opens. A vendor id arriving after a
	// minted one is ignored so every emission of the unit shares one id.
	call, ok := s.Slot.ToolCall()
	if !ok || call.Index != inc.Index {
		call = chunk.ToolCall{ID: inc.ID, Index: inc.Index}
		if call.ID == "" {
			call.ID = ids()
		}
		s.Slot, out = s.Slot.Replace(call)
	}

	if inc.Function != nil {
		if inc.Function.Name != "" {
			call.Name = inc.Function.Name
		}
		call.Arguments += inc.Function.Arguments
	}

	var emitted chunk.Chunk
	s.Slot, emitted = s.Slot.Update(call)
	return s, append(out, emitted)
}

// MapFinishReason maps an OpenAI finish_reason onto the canonical reasons.
func MapFinishReason(reason string) chunk.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return chunk.FinishToolCall
	case "length":
		return chunk.FinishMaxTokens
	case "content_filter":
		return chunk.FinishContentFilter
	case "stop":
		return chunk.FinishEndTurn
	default:
		return chunk.FinishUnknown
	}
}

// Aggregator applies Step to the framed events of one stream.
type Aggregator struct {
	state State
	ids   chunk.IDSource
}

// NewAggregator returns an Aggregator with empty state.
func NewAggregator(ids chunk.IDSource) *Aggregator {
	return &Aggregator{ids: ids}
}

// Apply decodes one chat.completion.chunk event and steps the state.
func (a *Aggregator) Apply(payload json.RawMessage) ([]chunk.Chunk, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding openai stream event: %w", err)
	}

	var out []chunk.Chunk
	a.state, out = Step(a.state, ev, a.ids)
	return out, nil
}

// Flush closes the unit still open at the end of input.
func (a *Aggregator) Flush() []chunk.Chunk {
	var out []chunk.Chunk
	a.state, out = Flush(a.state)
	return out
}
