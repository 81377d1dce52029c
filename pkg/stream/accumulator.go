package stream

import (
	"strings"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// Accumulator keeps the latest emission of every unit in the order units
// opened, plus the last Finish and Usage seen. It is the consumer-side view
// of a stream: what a UI renders or a transcript stores.
type Accumulator struct {
	entries []chunk.Chunk
	open    int
	finish  *chunk.Finish
	usage   *chunk.Usage
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{open: -1}
}

// Apply records one emission.
func (a *Accumulator) Apply(c chunk.Chunk) {
	switch v := c.(type) {
	case chunk.Finish:
		a.finish = &v
		a.entries = append(a.entries, v)
		return
	case chunk.Usage:
		a.usage = &v
		a.entries = append(a.entries, v)
		return
	}

	if a.open >= 0 && sameUnit(a.entries[a.open], c) {
		a.entries[a.open] = c
	} else {
		a.entries = append(a.entries, c)
		a.open = len(a.entries) - 1
	}

	if c.IsDone() {
		a.open = -1
	}
}

// sameUnit reports whether next continues prev. A tool call keeps its slot
// when the vendor id replaces a minted one mid-lifecycle.
func sameUnit(prev, next chunk.Chunk) bool {
	if prev.UnitID() == next.UnitID() {
		return prev.Type() == next.Type()
	}
	p, ok := prev.(chunk.ToolCall)
	if !ok {
		return false
	}
	n, ok := next.(chunk.ToolCall)
	return ok && p.Index == n.Index
}

// Final returns the latest emission of every unit and every single-shot
// chunk, in order.
func (a *Accumulator) Final() []chunk.Chunk {
	out := make([]chunk.Chunk, len(a.entries))
	copy(out, a.entries)
	return out
}

// Text returns the concatenated assistant text.
func (a *Accumulator) Text() string {
	var b strings.Builder
	for _, c := range a.entries {
		if t, ok := c.(chunk.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls in the order they opened.
func (a *Accumulator) ToolCalls() []chunk.ToolCall {
	var calls []chunk.ToolCall
	for _, c := range a.entries {
		if t, ok := c.(chunk.ToolCall); ok {
			calls = append(calls, t)
		}
	}
	return calls
}

// Finish returns the last Finish chunk, or nil.
func (a *Accumulator) Finish() *chunk.Finish {
	return a.finish
}

// Usage returns the last Usage chunk, or nil.
func (a *Accumulator) Usage() *chunk.Usage {
	return a.usage
}

// Open reports whether a unit is still open.
func (a *Accumulator) Open() bool {
	return a.open >= 0
}
