// Package chunk defines the vendor-agnostic output of a normalized completion
// stream.
//
// Every vendor stream is reduced to an ordered sequence of four chunk kinds.
// Text and ToolCall chunks are "units": they open on their first delta, are
// re-emitted with the same ID each time their accumulator grows, and close
// with exactly one final emission where Done is true. Finish and Usage chunks
// are single-shot and always emitted closed.
package chunk

// Type discriminates the chunk variants.
type Type string

const (
	TypeText     Type = "text"
	TypeToolCall Type = "tool_call"
	TypeFinish   Type = "finish"
	TypeUsage    Type = "usage"
)

// FinishReason is the canonical classification of why a turn ended.
type FinishReason string

const (
	FinishEndTurn       FinishReason = "end_turn"
	FinishToolCall      FinishReason = "tool_call"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// Chunk is one emission of the canonical stream. The set of implementations
// is closed: Text, ToolCall, Finish and Usage.
type Chunk interface {
	Type() Type

	// UnitID is the identity of the unit this emission belongs to.
	UnitID() string

	// IsDone reports whether this is the final emission for UnitID.
	IsDone() bool

	isChunk()
}

// Text is an assistant text unit. Text holds the full accumulated content,
// not only the latest delta.
type Text struct {
	ID   string
	Text string
	Done bool
}

func (Text) Type() Type       { return TypeText }
func (t Text) UnitID() string { return t.ID }
func (t Text) IsDone() bool   { return t.Done }
func (Text) isChunk()         {}

// ToolCall is a tool invocation unit. Index is the vendor-assigned ordinal that
// disambiguates parallel calls in one turn. Arguments is the accumulated,
// possibly incomplete, JSON-encoded argument string.
type ToolCall struct {
	ID        string
	Index     int
	Name      string
	Arguments string
	Done      bool
}

func (ToolCall) Type() Type       { return TypeToolCall }
func (t ToolCall) UnitID() string { return t.ID }
func (t ToolCall) IsDone() bool   { return t.Done }
func (ToolCall) isChunk()         {}

// Finish reports the end of a generation turn.
type Finish struct {
	ID     string
	Reason FinishReason
}

func (Finish) Type() Type       { return TypeFinish }
func (f Finish) UnitID() string { return f.ID }
func (Finish) IsDone() bool     { return true }
func (Finish) isChunk()         {}

// Usage reports token accounting for a turn.
type Usage struct {
	ID               string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (Usage) Type() Type       { return TypeUsage }
func (u Usage) UnitID() string { return u.ID }
func (Usage) IsDone() bool     { return true }
func (Usage) isChunk()         {}

// Interface compliance checks.
var (
	_ Chunk = Text{}
	_ Chunk = ToolCall{}
	_ Chunk = Finish{}
	_ Chunk = Usage{}
)

// Close returns the closing copy of an open unit. Finish and Usage chunks are
// already closed and are returned unchanged.
func Close(c Chunk) Chunk {
	switch v := c.(type) {
	case Text:
		v.Done = true
		return v
	case ToolCall:
		v.Done = true
		return v
	default:
		return c
	}
}

// IsUnit reports whether c takes part in the open/close protocol.
func IsUnit(c Chunk) bool {
	switch c.(type) {
	case Text, ToolCall:
		return true
	default:
		return false
	}
}
