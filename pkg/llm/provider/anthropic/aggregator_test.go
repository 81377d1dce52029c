package anthropic_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm/provider/anthropic"
)

var _ = Describe("Step", func() {
	var (
		ids   chunk.IDSource
		state anthropic.State
	)

	step := func(raw string) []chunk.Chunk {
		var ev anthropic.Event
		Expect(json.Unmarshal([]byte(raw), &ev)).To(Succeed())

		var out []chunk.Chunk
		state, out = anthropic.Step(state, ev, ids)
		return out
	}

	BeforeEach(func() {
		ids = chunk.Sequence("id")
		state = anthropic.State{}
	})

	Context("with a text block", func() {
		It("emits the empty block on start, then grows it and closes it on stop", func() {
			Expect(step(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)).
				To(Equal([]chunk.Chunk{chunk.Text{ID: "id-1"}}))
			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`)).
				To(Equal([]chunk.Chunk{chunk.Text{ID: "id-1", Text: "Hi"}}))
			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`)).
				To(Equal([]chunk.Chunk{chunk.Text{ID: "id-1", Text: "Hi there"}}))
			Expect(step(`{"type":"content_block_stop","index":0}`)).
				To(Equal([]chunk.Chunk{chunk.Text{ID: "id-1", Text: "Hi there", Done: true}}))
			Expect(state.Slot.Empty()).To(BeTrue())
		})
	})

	Context("with a tool_use block", func() {
		It("opens with the vendor id and name at index 0 and accumulates partial json", func() {
			Expect(step(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"weather","input":{}}}`)).
				To(Equal([]chunk.Chunk{chunk.ToolCall{ID: "toolu_1", Index: 0, Name: "weather"}}))
			Expect(step(`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`)).
				To(Equal([]chunk.Chunk{chunk.ToolCall{ID: "toolu_1", Name: "weather", Arguments: `{"city":`}}))
			Expect(step(`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`)).
				To(Equal([]chunk.Chunk{chunk.ToolCall{ID: "toolu_1", Name: "weather", Arguments: `{"city":"Oslo"}`}}))
			Expect(step(`{"type":"content_block_stop","index":1}`)).
				To(Equal([]chunk.Chunk{chunk.ToolCall{ID: "toolu_1", Name: "weather", Arguments: `{"city":"Oslo"}`, Done: true}}))
		})

		It("ignores partial json when no tool call is open", func() {
			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`)).To(BeEmpty())

			step(`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)
			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`)).To(BeEmpty())
		})
	})

	Context("with a text delta while a tool call is open", func() {
		It("closes the tool call and opens a fresh text unit", func() {
			step(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"a"}}`)

			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"x"}}`)).To(Equal([]chunk.Chunk{
				chunk.ToolCall{ID: "toolu_1", Name: "a", Done: true},
				chunk.Text{ID: "id-1", Text: "x"},
			}))
		})
	})

	Context("with a block start while another block is open", func() {
		It("closes the open block first", func() {
			step(`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)
			step(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}`)

			Expect(step(`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`)).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1", Text: "a", Done: true},
				chunk.Text{ID: "id-2"},
			}))
		})
	})

	Context("with unknown kinds", func() {
		It("ignores unknown block kinds, delta kinds and event types", func() {
			Expect(step(`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`)).To(BeEmpty())
			Expect(step(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hm"}}`)).To(BeEmpty())
			Expect(step(`{"type":"ping"}`)).To(BeEmpty())
			Expect(step(`{"type":"message_stop"}`)).To(BeEmpty())
			Expect(state.Slot.Empty()).To(BeTrue())
		})
	})

	Context("with message_start", func() {
		It("discards an open unit without a closing emission", func() {
			step(`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)

			Expect(step(`{"type":"message_start","message":{"id":"msg_2"}}`)).To(BeEmpty())
			Expect(state.Slot.Empty()).To(BeTrue())
		})

		It("ignores the usage it carries", func() {
			Expect(step(`{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":7,"output_tokens":1}}}`)).To(BeEmpty())
			Expect(state.InputTokens).To(BeZero())

			Expect(step(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`)).To(Equal([]chunk.Chunk{
				chunk.Finish{ID: "id-1", Reason: chunk.FinishEndTurn},
				chunk.Usage{ID: "id-2", PromptTokens: 0, CompletionTokens: 5, TotalTokens: 5},
			}))
		})
	})

	Context("with message_delta", func() {
		It("emits finish regardless of the open unit", func() {
			step(`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)

			Expect(step(`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`)).To(Equal([]chunk.Chunk{
				chunk.Finish{ID: "id-2", Reason: chunk.FinishMaxTokens},
			}))
			Expect(state.Slot.Empty()).To(BeFalse())
		})

		It("combines stored input tokens with the reported output tokens", func() {
			Expect(step(`{"type":"message_delta","delta":{},"usage":{"input_tokens":10}}`)).To(Equal([]chunk.Chunk{
				chunk.Usage{ID: "id-1", PromptTokens: 10, CompletionTokens: 0, TotalTokens: 10},
			}))

			Expect(step(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`)).To(Equal([]chunk.Chunk{
				chunk.Finish{ID: "id-2", Reason: chunk.FinishEndTurn},
				chunk.Usage{ID: "id-3", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}))
		})

		It("does not reset input tokens on a zero count", func() {
			state.InputTokens = 7
			out := step(`{"type":"message_delta","delta":{},"usage":{"input_tokens":0,"output_tokens":3}}`)
			Expect(out).To(Equal([]chunk.Chunk{chunk.Usage{ID: "id-1", PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}}))
		})
	})

	Describe("Flush", func() {
		It("closes a unit left open by a truncated stream", func() {
			step(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"a"}}`)

			_, out := anthropic.Flush(state)
			Expect(out).To(Equal([]chunk.Chunk{chunk.ToolCall{ID: "toolu_1", Name: "a", Done: true}}))
		})
	})

	Describe("MapStopReason", func() {
		It("maps every known reason", func() {
			Expect(anthropic.MapStopReason("tool_use")).To(Equal(chunk.FinishToolCall))
			Expect(anthropic.MapStopReason("max_tokens")).To(Equal(chunk.FinishMaxTokens))
			Expect(anthropic.MapStopReason("content_filter")).To(Equal(chunk.FinishContentFilter))
			Expect(anthropic.MapStopReason("end_turn")).To(Equal(chunk.FinishEndTurn))
			Expect(anthropic.MapStopReason("stop_sequence")).To(Equal(chunk.FinishUnknown))
		})
	})
})
