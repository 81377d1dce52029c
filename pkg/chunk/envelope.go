package chunk

import (
	"fmt"
)

// Envelope is the flat JSON form of a chunk, used for NDJSON output,
// persisted transcripts and published events.
type Envelope struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
	Done bool   `json:"done"`

	// text
	Text string `json:"text,omitempty"`

	// tool_call
	Index     int    `json:"index,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// finish
	Reason FinishReason `json:"reason,omitempty"`

	// usage
	Usage *UsageCounts `json:"usage,omitempty"`
}

// UsageCounts is the token accounting block of a usage envelope.
type UsageCounts struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Wrap converts a chunk into its envelope.
func Wrap(c Chunk) Envelope {
	env := Envelope{Type: c.Type(), ID: c.UnitID(), Done: c.IsDone()}

	switch v := c.(type) {
	case Text:
		env.Text = v.Text
	case ToolCall:
		env.Index = v.Index
		env.Name = v.Name
		env.Arguments = v.Arguments
	case Finish:
		env.Reason = v.Reason
	case Usage:
		env.Usage = &UsageCounts{
			PromptTokens:     v.PromptTokens,
			CompletionTokens: v.CompletionTokens,
			TotalTokens:      v.TotalTokens,
		}
	}

	return env
}

// Chunk converts the envelope back into a chunk.
func (e Envelope) Chunk() (Chunk, error) {
	switch e.Type {
	case TypeText:
		return Text{ID: e.ID, Text: e.Text, Done: e.Done}, nil
	case TypeToolCall:
		return ToolCall{ID: e.ID, Index: e.Index, Name: e.Name, Arguments: e.Arguments, Done: e.Done}, nil
	case TypeFinish:
		return Finish{ID: e.ID, Reason: e.Reason}, nil
	case TypeUsage:
		u := Usage{ID: e.ID}
		if e.Usage != nil {
			u.PromptTokens = e.Usage.PromptTokens
			u.CompletionTokens = e.Usage.CompletionTokens
			u.TotalTokens = e.Usage.TotalTokens
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown chunk type: %q", e.Type)
	}
}
