// Package openai adapts OpenAI-style Chat Completions streams: "data:" framed
// chat.completion.chunk events whose deltas hang off a single active choice.
package openai

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/sse"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o"
)

// modelPrefixes are the model families served by the Chat Completions API.
var modelPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}

// provider implements the Provider interface for OpenAI's Chat Completions API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

func (o *provider) Framing() sse.Framing {
	return sse.FramingSSE
}

func (o *provider) DefaultEndpoint() string {
	return defaultEndpoint
}

func (o *provider) DefaultModel() string {
	return defaultModel
}

// CanHandle reports whether payload looks like an OpenAI request, response
// or stream event.
func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		Model   string `json:"model"`
		Object  string `json:"object"`
		Choices []any  `json:"choices"`
	}

	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	for _, prefix := range modelPrefixes {
		if strings.HasPrefix(probe.Model, prefix) {
			return true
		}
	}

	if strings.HasPrefix(probe.Object, "chat.completion") {
		return true
	}

	return probe.Choices != nil
}

// EncodeRequest builds a streaming Chat Completions body. Usage reporting is
// always requested so that streams end with a usage event.
func (o *provider) EncodeRequest(req *llm.ChatRequest) ([]byte, error) {
	body := openaiRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stop:          req.Stop,
		Seed:          req.Seed,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}

	if req.System != "" {
		body.Messages = append(body.Messages, openaiMessage{
			Role:    llm.RoleSystem,
			Content: []openaiContentPart{{Type: "text", Text: req.System}},
		})
	}

	for _, msg := range llm.NormalizeMessages(req.Messages) {
		body.Messages = append(body.Messages, convertMessage(msg)...)
	}

	for _, tool := range req.Tools {
		t := openaiTool{Type: "function"}
		t.Function.Name = tool.Name
		t.Function.Description = tool.Description
		t.Function.Parameters = tool.Parameters
		body.Tools = append(body.Tools, t)
	}

	return req.EncodeBody(body)
}

// Authorize sets the bearer token.
func (o *provider) Authorize(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

func (o *provider) NewAggregator(ids chunk.IDSource) llm.Aggregator {
	return NewAggregator(ids)
}

// convertMessage expands one message into OpenAI messages. Tool results
// become separate "tool" role messages.
func convertMessage(msg llm.Message) []openaiMessage {
	var (
		parts   []openaiContentPart
		calls   []openaiToolCall
		results []openaiMessage
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			parts = append(parts, openaiContentPart{Type: "text", Text: block.Text})

		case llm.BlockImage:
			url := block.ImageURL
			if url == "" && block.ImageBase64 != "" {
				url = "data:" + block.MediaType + ";base64," + block.ImageBase64
			}
			parts = append(parts, openaiContentPart{Type: "image_url", ImageURL: &openaiImageURL{URL: url}})

		case llm.BlockToolUse:
			call := openaiToolCall{ID: block.ToolUseID, Type: "function"}
			call.Function.Name = block.ToolName
			call.Function.Arguments = encodeArguments(block.ToolInput)
			calls = append(calls, call)

		case llm.BlockToolResult:
			results = append(results, openaiMessage{
				Role:       llm.RoleTool,
				ToolCallID: block.ToolResultID,
				Content:    []openaiContentPart{{Type: "text", Text: block.ToolOutput}},
			})
		}
	}

	var out []openaiMessage
	if len(parts) > 0 || len(calls) > 0 {
		m := openaiMessage{Role: msg.Role, ToolCalls: calls}
		if len(parts) > 0 {
			m.Content = parts
		}
		out = append(out, m)
	}
	return append(out, results...)
}

func encodeArguments(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
