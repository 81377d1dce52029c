package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// State is the aggregation state between two events. InputTokens is set by the
// first message_delta that reports it and reused by every later usage emission.
type State struct {
	Slot        chunk.Slot
	InputTokens int
}

// Step applies one block-lifecycle event. Unknown event types and unknown
// block kinds leave the state untouched and emit nothing.
func Step(s State, ev Event, ids chunk.IDSource) (State, []chunk.Chunk) {
	switch ev.Type {
	case EventMessageStart:
		s.Slot = s.Slot.Discard()
		return s, nil

	case EventContentBlockStart:
		return startBlock(s, ev.ContentBlock, ids)

	case EventContentBlockDelta:
		return applyDelta(s, ev.Delta, ids)

	case EventContentBlockStop:
		var out []chunk.Chunk
		s.Slot, out = s.Slot.Close()
		return s, out

	case EventMessageDelta:
		return messageDelta(s, ev, ids)

	default:
		return s, nil
	}
}

// Flush closes a unit left open by a truncated stream.
func Flush(s State) (State, []chunk.Chunk) {
	var out []chunk.Chunk
	s.Slot, out = s.Slot.Close()
	return s, out
}

func startBlock(s State, block *ContentBlock, ids chunk.IDSource) (State, []chunk.Chunk) {
	if block == nil {
		return s, nil
	}

	var next chunk.Chunk
	switch block.Type {
	case "text":
		next = chunk.Text{ID: ids()}
	case "tool_use":
		id := block.ID
		if id == "" {
			id = ids()
		}
		// Blocks never multiplex tool calls, so the index is always 0.
		next = chunk.ToolCall{ID: id, Index: 0, Name: block.Name}
	default:
		return s, nil
	}

	var out []chunk.Chunk
	s.Slot, out = s.Slot.Replace(next)
	return s, append(out, s.Slot.Open())
}

func applyDelta(s State, delta *Delta, ids chunk.IDSource) (State, []chunk.Chunk) {
	if delta == nil {
		return s, nil
	}

	var out []chunk.Chunk

	switch delta.Type {
	case "text_delta":
		text, ok := s.Slot.Text()
		if !ok {
			text = chunk.Text{ID: ids()}
			s.Slot, out = s.Slot.Replace(text)
		}
		text.Text += delta.Text

		var emitted chunk.Chunk
		s.Slot, emitted = s.Slot.Update(text)
		out = append(out, emitted)

	case "input_json_delta":
		call, ok := s.Slot.ToolCall()
		if !ok {
			return s, nil
		}
		call.Arguments += delta.PartialJSON

		var emitted chunk.Chunk
		s.Slot, emitted = s.Slot.Update(call)
		out = append(out, emitted)
	}

	return s, out
}

func messageDelta(s State, ev Event, ids chunk.IDSource) (State, []chunk.Chunk) {
	var out []chunk.Chunk

	if ev.Delta != nil && ev.Delta.StopReason != "" {
		out = append(out, chunk.Finish{ID: ids(), Reason: MapStopReason(ev.Delta.StopReason)})
	}

	if ev.Usage != nil {
		if ev.Usage.InputTokens > 0 {
			s.InputTokens = ev.Usage.InputTokens
		}
		out = append(out, chunk.Usage{
			ID:               ids(),
			PromptTokens:     s.InputTokens,
			CompletionTokens: ev.Usage.OutputTokens,
			TotalTokens:      s.InputTokens + ev.Usage.OutputTokens,
		})
	}

	return s, out
}

// MapStopReason maps an Anthropic stop_reason onto the canonical reasons.
func MapStopReason(reason string) chunk.FinishReason {
	switch reason {
	case "tool_use":
		return chunk.FinishToolCall
	case "max_tokens":
		return chunk.FinishMaxTokens
	case "content_filter":
		return chunk.FinishContentFilter
	case "end_turn":
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

// Apply decodes one Messages stream event and steps the state.
func (a *Aggregator) Apply(payload json.RawMessage) ([]chunk.Chunk, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding anthropic stream event: %w", err)
	}

	var out []chunk.Chunk
	a.state, out = Step(a.state, ev, a.ids)
	return out, nil
}

// Flush closes a unit left open by a truncated stream.
func (a *Aggregator) Flush() []chunk.Chunk {
	var out []chunk.Chunk
	a.state, out = Flush(a.state)
	return out
}
