// Package anthropic adapts Claude Messages streams: typed events with an
// explicit content block lifecycle.
package anthropic

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/sse"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024

	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"
)

var streamEventTypes = []string{
	EventMessageStart,
	EventContentBlockStart,
	EventContentBlockDelta,
	EventContentBlockStop,
	EventMessageDelta,
	EventMessageStop,
	EventPing,
}

// provider implements the Provider interface for Anthropic's Claude API.
type provider struct{}

// New
func New() *provider { return &provider{} }

// Name
func (p *provider) Name() string {
	return "anthropic"
}

func (p *provider) Framing() sse.Framing {
	return sse.FramingSSE
}

func (p *provider) DefaultEndpoint() string {
	return defaultEndpoint
}

func (p *provider) DefaultModel() string {
	return defaultModel
}

func (p *provider) CanHandle(payload []byte) bool {
	var probe struct {
		Model     string `json:"model"`
		MaxTokens *int   `json:"max_tokens"`

		// Union type: string or []ContentBlock
		System any `json:"system"`

		// Response and stream event fields
		Type       string `json:"type"`
		StopReason string `json:"stop_reason"`
	}

	err := json.Unmarshal(payload, &probe)
	if err != nil {
		return false
	}

	// Check for Claude model names
	if strings.HasPrefix(probe.Model, "claude-") {
		return true
	}

	// Check for Anthropic response structure
	if probe.Type == "message" && probe.StopReason != "" {
		return true
	}

	// Check for Messages stream events
	if slices.Contains(streamEventTypes, probe.Type) {
		return true
	}

	// max_tokens is required for Anthropic, optional for others
	// combined with a top-level system field is a strong signal
	if probe.MaxTokens != nil && probe.System != nil {
		return true
	}

	return false
}

// EncodeRequest builds a streaming Messages body. System messages are folded
// into the top-level system prompt and tool results travel as user turns.
func (p *provider) EncodeRequest(req *llm.ChatRequest) ([]byte, error) {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.Stop,
		Stream:      true,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}

	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}

	for _, msg := range llm.NormalizeMessages(req.Messages) {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.GetText())
			continue
		}

		role := msg.Role
		if role == llm.RoleTool {
			role = llm.RoleUser
		}

		blocks := convertBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: role, Content: blocks})
	}
	body.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		schema := tool.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	return req.EncodeBody(body)
}

// Authorize sets the API key and version headers.
func (p *provider) Authorize(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("x-api-key", apiKey)
	}
	h.Set("anthropic-version", APIVersion)
}

func (p *provider) NewAggregator(ids chunk.IDSource) llm.Aggregator {
	return NewAggregator(ids)
}

func convertBlocks(content []llm.ContentBlock) []anthropicContentBlock {
	blocks := make([]anthropicContentBlock, 0, len(content))
	for _, block := range content {
		switch block.Type {
		case llm.BlockText:
			blocks = append(blocks, anthropicContentBlock{Type: "text", Text: block.Text})

		case llm.BlockImage:
			src := &anthropicSource{Type: "url", URL: block.ImageURL}
			if block.ImageBase64 != "" {
				src = &anthropicSource{Type: "base64", MediaType: block.MediaType, Data: block.ImageBase64}
			}
			blocks = append(blocks, anthropicContentBlock{Type: "image", Source: src})

		case llm.BlockToolUse:
			input := block.ToolInput
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.ToolUseID,
				Name:  block.ToolName,
				Input: input,
			})

		case llm.BlockToolResult:
			blocks = append(blocks, anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ToolResultID,
				Content:   block.ToolOutput,
				IsError:   block.IsError,
			})
		}
	}
	return blocks
}
