package stream_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm/provider"
	"github.com/papercomputeco/deltas/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/deltas/pkg/llm/provider/openai"
	"github.com/papercomputeco/deltas/pkg/sse"
	"github.com/papercomputeco/deltas/pkg/stream"
)

const mixedOpenAI = "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Let \"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"me check. ✓\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_a\",\"function\":{\"name\":\"a\",\"arguments\":\"{\\\"q\\\"\"}}]}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\":1}\"}}]}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":1,\"id\":\"call_b\",\"function\":{\"name\":\"b\",\"arguments\":\"{}\"}}]}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n" +
	"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":4,\"total_tokens\":13}}\n\n" +
	"data: [DONE]\n\n"

const lateIDOpenAI = "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":\"a\",\"arguments\":\"{\"}}]}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_late\",\"function\":{\"arguments\":\"}\"}}]}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n" +
	"data: [DONE]\n\n"

const mixedAnthropic = "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"usage\":{\"input_tokens\":12,\"output_tokens\":1}}}\n\n" +
	"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
	"event: ping\ndata: {\"type\":\"ping\"}\n\n" +
	"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Sure, \"}}\n\n" +
	"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"héllo\"}}\n\n" +
	"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
	"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":1,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"clock\",\"input\":{}}}\n\n" +
	"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"tz\\\":\"}}\n\n" +
	"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"UTC\\\"}\"}}\n\n" +
	"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":1}\n\n" +
	"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"},\"usage\":{\"output_tokens\":20}}\n\n" +
	"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

// checkProtocol asserts the open/close protocol over a whole emission sequence.
func checkProtocol(out []chunk.Chunk) {
	var open chunk.Chunk
	closed := map[string]bool{}

	for i, c := range out {
		Expect(closed).NotTo(HaveKey(c.UnitID()), "emission %d reuses closed id %q", i, c.UnitID())

		if !chunk.IsUnit(c) {
			Expect(c.IsDone()).To(BeTrue())
			closed[c.UnitID()] = true
			continue
		}

		if open != nil && open.UnitID() != c.UnitID() {
			Fail("a unit opened while another was still open")
		}

		if t, ok := c.(chunk.Text); ok && open != nil {
			Expect(t.Text).To(HavePrefix(open.(chunk.Text).Text), "text accumulator must only grow")
		}
		if t, ok := c.(chunk.ToolCall); ok && open != nil {
			Expect(t.Arguments).To(HavePrefix(open.(chunk.ToolCall).Arguments), "arguments must only grow")
		}

		if c.IsDone() {
			Expect(c).To(Equal(chunk.Close(open)), "closing emission must repeat the last open state")
			closed[c.UnitID()] = true
			open = nil
		} else {
			open = c
		}
	}

	Expect(open).To(BeNil(), "stream ended with an open unit")
}

var _ = Describe("Stream protocol", func() {
	DescribeTableSubtree("across every fragment size",
		func(input string, p provider.Provider) {
			var reference []chunk.Chunk

			BeforeEach(func() {
				var err error
				reference, err = stream.Drain(stream.New(sse.NewFragments(input), p, stream.Options{IDs: chunk.Sequence("id")}))
				Expect(err).NotTo(HaveOccurred())
			})

			It("keeps at most one unit open and never reuses a closed id", func() {
				checkProtocol(reference)
			})

			It("produces the same sequence however the input is fragmented", func() {
				for size := 1; size <= 64; size++ {
					out, err := stream.Drain(stream.New(sse.Split(input, size), p, stream.Options{IDs: chunk.Sequence("id")}))
					Expect(err).NotTo(HaveOccurred())
					Expect(out).To(Equal(reference), "fragment size %d", size)
				}
			})

		},
		Entry("OpenAI text and parallel tool calls", mixedOpenAI, openai.New()),
		Entry("OpenAI tool call whose id arrives after it opened", lateIDOpenAI, openai.New()),
		Entry("Claude text and tool use blocks", mixedAnthropic, anthropic.New()),
	)

	It("emits nothing after the terminator", func() {
		ids := chunk.Sequence("id")
		reference, err := stream.Drain(stream.New(sse.NewFragments(mixedOpenAI), openai.New(), stream.Options{IDs: ids}))
		Expect(err).NotTo(HaveOccurred())

		late := strings.Replace(mixedOpenAI, "data: [DONE]\n\n",
			"data: [DONE]\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n\n", 1)
		out, err := stream.Drain(stream.New(sse.NewFragments(late), openai.New(), stream.Options{IDs: chunk.Sequence("id")}))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(reference))
	})

	It("accumulates the OpenAI turn into its final state", func() {
		out, err := stream.Drain(stream.New(sse.NewFragments(mixedOpenAI), openai.New(), stream.Options{IDs: chunk.Sequence("id")}))
		Expect(err).NotTo(HaveOccurred())

		acc := stream.NewAccumulator()
		for _, c := range out {
			acc.Apply(c)
		}

		Expect(acc.Text()).To(Equal("Let me check. ✓"))
		Expect(acc.ToolCalls()).To(Equal([]chunk.ToolCall{
			{ID: "call_a", Index: 0, Name: "a", Arguments: `{"q":1}`, Done: true},
			{ID: "call_b", Index: 1, Name: "b", Arguments: `{}`, Done: true},
		}))
		Expect(acc.Finish().Reason).To(Equal(chunk.FinishToolCall))
		Expect(acc.Usage().TotalTokens).To(Equal(13))
	})

	It("takes input tokens only from message_delta", func() {
		out, err := stream.Drain(stream.New(sse.NewFragments(mixedAnthropic), anthropic.New(), stream.Options{IDs: chunk.Sequence("id")}))
		Expect(err).NotTo(HaveOccurred())

		usage, ok := out[len(out)-1].(chunk.Usage)
		Expect(ok).To(BeTrue())
		Expect(usage.PromptTokens).To(BeZero())
		Expect(usage.CompletionTokens).To(Equal(20))
		Expect(usage.TotalTokens).To(Equal(20))
	})
})
