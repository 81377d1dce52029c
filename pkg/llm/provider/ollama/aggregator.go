package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// State is the aggregation state between two events. ToolCalls counts the
// tool calls seen this turn; it numbers calls without a vendor index and
// decides between end_turn and tool_call when the turn stops.
type State struct {
	Slot      chunk.Slot
	ToolCalls int
}

// Step applies one streamed message event.
func Step(s State, ev Event, ids chunk.IDSource) (State, []chunk.Chunk) {
	var out []chunk.Chunk

	if msg := ev.Message; msg != nil {
		if msg.Content != "" {
			var emitted []chunk.Chunk
			s, emitted = appendText(s, msg.Content, ids)
			out = append(out, emitted...)
		}

		for _, call := range msg.ToolCalls {
			var emitted []chunk.Chunk
			s, emitted = openToolCall(s, call, ids)
			out = append(out, emitted...)
		}
	}

	if !ev.Done {
		return s, out
	}

	var closed []chunk.Chunk
	s.Slot, closed = s.Slot.Close()
	out = append(out, closed...)
	out = append(out, chunk.Finish{ID: ids(), Reason: MapDoneReason(ev.DoneReason, s.ToolCalls > 0)})

	if ev.PromptEvalCount > 0 || ev.EvalCount > 0 {
		out = append(out, chunk.Usage{
			ID:               ids(),
			PromptTokens:     ev.PromptEvalCount,
			CompletionTokens: ev.EvalCount,
			TotalTokens:      ev.PromptEvalCount + ev.EvalCount,
		})
	}

	return s, out
}

// Flush closes the unit still open when the stream ends without a done event.
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

// openToolCall closes whatever is open and opens the call. Each call arrives
// whole, so it stays open only until the next unit or the done event.
func openToolCall(s State, call ToolCall, ids chunk.IDSource) (State, []chunk.Chunk) {
	next := chunk.ToolCall{
		ID:        call.ID,
		Index:     s.ToolCalls,
		Name:      call.Function.Name,
		Arguments: compactArguments(call.Function.Arguments),
	}
	if next.ID == "" {
		next.ID = ids()
	}
	if call.Function.Index != nil {
		next.Index = *call.Function.Index
	}
	s.ToolCalls++

	var out []chunk.Chunk
	s.Slot, out = s.Slot.Replace(next)
	return s, append(out, s.Slot.Open())
}

func compactArguments(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// MapDoneReason maps an Ollama done_reason onto the canonical reasons. Ollama
// reports "stop" for turns that end in tool calls too.
func MapDoneReason(reason string, sawToolCall bool) chunk.FinishReason {
	switch reason {
	case "stop":
		if sawToolCall {
			return chunk.FinishToolCall
		}
		return chunk.FinishEndTurn
	case "length":
		return chunk.FinishMaxTokens
	default:
		return chunk.FinishUnknown
	}
}

// ErrStreamError wraps an error object reported inside the stream.
var ErrStreamError = errors.New("ollama stream error")

// Aggregator applies Step to the framed events of one stream.
type Aggregator struct {
	state State
	ids   chunk.IDSource
}

// NewAggregator returns an Aggregator with empty state.
func NewAggregator(ids chunk.IDSource) *Aggregator {
	return &Aggregator{ids: ids}
}

// Apply decodes one NDJSON chat event and steps the state. An in-band error
// object is returned as an error and does not change the state.
func (a *Aggregator) Apply(payload json.RawMessage) ([]chunk.Chunk, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding ollama stream event: %w", err)
	}
	if ev.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrStreamError, ev.Error)
	}

	var out []chunk.Chunk
	a.state, out = Step(a.state, ev, a.ids)
	return out, nil
}

// Flush closes the unit still open when the stream ends without a done event.
func (a *Aggregator) Flush() []chunk.Chunk {
	var out []chunk.Chunk
	a.state, out = Flush(a.state)
	return out
}
