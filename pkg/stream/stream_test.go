package stream_test

import (
	"bytes"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/deltas/pkg/llm/provider/ollama"
	"github.com/papercomputeco/deltas/pkg/llm/provider/openai"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/sse"
	"github.com/papercomputeco/deltas/pkg/stream"
)

// brokenSource yields its fragments and then fails like a dropped connection.
type brokenSource struct {
	*sse.Fragments
}

func (b *brokenSource) Next() (string, error) {
	frag, err := b.Fragments.Next()
	if errors.Is(err, io.EOF) {
		return "", errors.New("unexpected EOF from upstream")
	}
	return frag, err
}

const textThenFinish = "data:{\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
	"data:{\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
	"data:{\"choices\":[{\"finish_reason\":\"stop\"}]}\n" +
	"data:[DONE]\n"

var _ = Describe("Stream", func() {
	var (
		logs *bytes.Buffer
		opts stream.Options
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		opts = stream.Options{
			IDs:    chunk.Sequence("id"),
			Logger: logger.New(logger.WithWriter(logs), logger.WithJSON(true), logger.WithDebug(true)),
		}
	})

	Context("with OpenAI-style input", func() {
		It("emits text then finish and ends at the sentinel", func() {
			s := stream.New(sse.Split(textThenFinish, 7), openai.New(), opts)

			out, err := stream.Drain(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1", Text: "Hel"},
				chunk.Text{ID: "id-1", Text: "Hello"},
				chunk.Text{ID: "id-1", Text: "Hello", Done: true},
				chunk.Finish{ID: "id-2", Reason: chunk.FinishEndTurn},
			}))

			c, err := s.Next()
			Expect(err).To(MatchError(stream.ErrStreamClosed))
			Expect(c).To(BeNil())
		})

		It("closes one tool call index before the next opens", func() {
			input := "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_a\",\"function\":{\"name\":\"a\",\"arguments\":\"{\\\"x\\\":\"}}]}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"1}\"}}]}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":1,\"id\":\"call_b\",\"function\":{\"name\":\"b\",\"arguments\":\"{\\\"y\\\":\"}}]}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":1,\"function\":{\"arguments\":\"2}\"}}]}}]}\n\n" +
				"data: [DONE]\n\n"

			out, err := stream.Drain(stream.New(sse.NewFragments(input), openai.New(), opts))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.ToolCall{ID: "call_a", Index: 0, Name: "a", Arguments: `{"x":`},
				chunk.ToolCall{ID: "call_a", Index: 0, Name: "a", Arguments: `{"x":1}`},
				chunk.ToolCall{ID: "call_a", Index: 0, Name: "a", Arguments: `{"x":1}`, Done: true},
				chunk.ToolCall{ID: "call_b", Index: 1, Name: "b", Arguments: `{"y":`},
				chunk.ToolCall{ID: "call_b", Index: 1, Name: "b", Arguments: `{"y":2}`},
				chunk.ToolCall{ID: "call_b", Index: 1, Name: "b", Arguments: `{"y":2}`, Done: true},
			}))
		})

		It("skips a malformed line and keeps emitting", func() {
			input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n" +
				"data: [DONE]\n"

			s := stream.New(sse.NewFragments(input), openai.New(), opts)
			out, err := stream.Drain(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1", Text: "a"},
				chunk.Text{ID: "id-1", Text: "ab"},
				chunk.Text{ID: "id-1", Text: "ab", Done: true},
			}))
			Expect(s.Skipped()).To(Equal(1))
			Expect(strings.Count(logs.String(), `"msg":"skipping malformed stream line"`)).To(Equal(1))
			Expect(logs.String()).To(ContainSubstring(`"provider":"openai"`))
		})

		It("skips well-formed JSON the aggregator cannot decode", func() {
			input := "data: {\"choices\":\"oops\"}\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
				"data: [DONE]\n"

			s := stream.New(sse.NewFragments(input), openai.New(), opts)
			out, err := stream.Drain(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(s.Skipped()).To(Equal(1))
			Expect(strings.Count(logs.String(), `"msg":"skipping undecodable stream event"`)).To(Equal(1))
		})

		It("closes an open unit when upstream ends without a sentinel", func() {
			input := "data: {\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\ndata: {\"choi"

			out, err := stream.Drain(stream.New(sse.NewFragments(input), openai.New(), opts))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1", Text: "cut"},
				chunk.Text{ID: "id-1", Text: "cut", Done: true},
			}))
		})
	})

	Context("with Claude-style input", func() {
		It("combines input and output tokens across message deltas", func() {
			input := "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
				"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
				"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
				"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{},\"usage\":{\"input_tokens\":10}}\n\n" +
				"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":5}}\n\n" +
				"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

			out, err := stream.Drain(stream.New(sse.Split(input, 16), anthropic.New(), opts))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1"},
				chunk.Text{ID: "id-1", Text: "Hi"},
				chunk.Text{ID: "id-1", Text: "Hi", Done: true},
				chunk.Usage{ID: "id-2", PromptTokens: 10, CompletionTokens: 0, TotalTokens: 10},
				chunk.Finish{ID: "id-3", Reason: chunk.FinishEndTurn},
				chunk.Usage{ID: "id-4", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}))
		})

		It("closes a block left open by a truncated stream", func() {
			input := "data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"a\"}}\n" +
				"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\"}}\n"

			out, err := stream.Drain(stream.New(sse.NewFragments(input), anthropic.New(), opts))
			Expect(err).NotTo(HaveOccurred())
			Expect(out[len(out)-1]).To(Equal(chunk.ToolCall{ID: "toolu_1", Name: "a", Arguments: "{", Done: true}))
		})
	})

	Context("with NDJSON input", func() {
		It("normalizes an Ollama stream", func() {
			input := "{\"message\":{\"role\":\"assistant\",\"content\":\"Hi\"},\"done\":false}\n" +
				"{\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true,\"done_reason\":\"stop\",\"prompt_eval_count\":4,\"eval_count\":1}\n"

			out, err := stream.Drain(stream.New(sse.Split(input, 5), ollama.New(), opts))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]chunk.Chunk{
				chunk.Text{ID: "id-1", Text: "Hi"},
				chunk.Text{ID: "id-1", Text: "Hi", Done: true},
				chunk.Finish{ID: "id-2", Reason: chunk.FinishEndTurn},
				chunk.Usage{ID: "id-3", PromptTokens: 4, CompletionTokens: 1, TotalTokens: 5},
			}))
		})
	})

	Context("when the transport fails", func() {
		It("returns the error without closing the open unit", func() {
			src := &brokenSource{Fragments: sse.NewFragments("data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n")}

			out, err := stream.Drain(stream.New(src, openai.New(), opts))
			Expect(err).To(MatchError(ContainSubstring("unexpected EOF from upstream")))
			Expect(out).To(Equal([]chunk.Chunk{chunk.Text{ID: "id-1", Text: "par"}}))
			Expect(src.Closed()).To(BeTrue())
		})
	})

	Context("when the consumer stops early", func() {
		It("releases the source and emits nothing more", func() {
			src := sse.NewFragments(strings.SplitAfter(textThenFinish, "\n")...)
			s := stream.New(src, openai.New(), opts)

			c, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(c).To(Equal(chunk.Text{ID: "id-1", Text: "Hel"}))

			Expect(s.Close()).To(Succeed())
			Expect(src.Closed()).To(BeTrue())
			Expect(src.Remaining()).To(BeNumerically(">", 0))

			_, err = s.Next()
			Expect(err).To(MatchError(stream.ErrStreamClosed))
		})
	})

	It("keeps concurrent streams independent", func() {
		a := stream.New(sse.NewFragments(textThenFinish), openai.New(), stream.Options{IDs: chunk.Sequence("a")})
		b := stream.New(sse.NewFragments(textThenFinish), openai.New(), stream.Options{IDs: chunk.Sequence("b")})

		first, err := a.Next()
		Expect(err).NotTo(HaveOccurred())
		other, err := b.Next()
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(chunk.Text{ID: "a-1", Text: "Hel"}))
		Expect(other).To(Equal(chunk.Text{ID: "b-1", Text: "Hel"}))
		Expect(a.Provider()).To(Equal("openai"))
	})

	It("defaults to uuid ids", func() {
		s := stream.New(sse.NewFragments(textThenFinish), openai.New(), stream.Options{})
		c, err := s.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.UnitID()).To(HaveLen(8))
	})
})
