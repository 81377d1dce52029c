package ollama

import (
	"encoding/json"
	"net/http"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/sse"
)

const (
	defaultEndpoint = "http://localhost:11434/api/chat"
	defaultModel    = "llama3.2"
)

// provider implements the Provider interface for Ollama's chat API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "ollama"
}

// Framing is NDJSON: Ollama streams one bare JSON object per line.
func (o *provider) Framing() sse.Framing {
	return sse.FramingNDJSON
}

func (o *provider) DefaultEndpoint() string {
	return defaultEndpoint
}

func (o *provider) DefaultModel() string {
	return defaultModel
}

func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		KeepAlive string `json:"keep_alive"`
		Options   any    `json:"options"`
		Context   []int  `json:"context"`

		// Ollama-specific response fields
		CreatedAt     string `json:"created_at"`
		Message       any    `json:"message"`
		TotalDuration int64  `json:"total_duration"`
		EvalCount     int    `json:"eval_count"`
	}

	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	// Check for Ollama-specific request fields
	if probe.KeepAlive != "" || probe.Options != nil {
		return true
	}

	// Check for Ollama-specific response fields
	if probe.Context != nil || probe.TotalDuration > 0 || probe.EvalCount > 0 {
		return true
	}

	// Streamed chat lines carry a timestamp next to a partial message
	return probe.CreatedAt != "" && probe.Message != nil
}

// EncodeRequest builds a streaming /api/chat body. Generation parameters
// travel in options.
func (o *provider) EncodeRequest(req *llm.ChatRequest) ([]byte, error) {
	body := ollamaRequest{
		Model:  req.Model,
		Stream: true,
	}

	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil ||
		req.TopK != nil || req.Seed != nil || len(req.Stop) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			TopK:        req.TopK,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: llm.RoleSystem, Content: req.System})
	}

	toolNames := map[string]string{}
	for _, msg := range llm.NormalizeMessages(req.Messages) {
		body.Messages = append(body.Messages, convertMessage(msg, toolNames)...)
	}

	for _, tool := range req.Tools {
		t := ollamaTool{Type: "function"}
		t.Function.Name = tool.Name
		t.Function.Description = tool.Description
		t.Function.Parameters = tool.Parameters
		body.Tools = append(body.Tools, t)
	}

	return req.EncodeBody(body)
}

// Authorize sets a bearer token when one is configured, as for hosted
// Ollama instances. Local servers need none.
func (o *provider) Authorize(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

func (o *provider) NewAggregator(ids chunk.IDSource) llm.Aggregator {
	return NewAggregator(ids)
}

// convertMessage flattens content blocks into Ollama's single content string.
// toolNames remembers tool_use ids so that results can name their tool.
func convertMessage(msg llm.Message, toolNames map[string]string) []ollamaMessage {
	m := ollamaMessage{Role: msg.Role}
	var results []ollamaMessage

	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			m.Content += block.Text

		case llm.BlockImage:
			if block.ImageBase64 != "" {
				m.Images = append(m.Images, block.ImageBase64)
			}

		case llm.BlockToolUse:
			toolNames[block.ToolUseID] = block.ToolName
			var call ollamaToolCall
			call.Function.Name = block.ToolName
			call.Function.Arguments = block.ToolInput
			if call.Function.Arguments == nil {
				call.Function.Arguments = map[string]any{}
			}
			m.ToolCalls = append(m.ToolCalls, call)

		case llm.BlockToolResult:
			results = append(results, ollamaMessage{
				Role:     llm.RoleTool,
				Content:  block.ToolOutput,
				ToolName: toolNames[block.ToolResultID],
			})
		}
	}

	var out []ollamaMessage
	if m.Content != "" || len(m.Images) > 0 || len(m.ToolCalls) > 0 {
		out = append(out, m)
	}
	return append(out, results...)
}
