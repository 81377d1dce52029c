package chunk

// Slot holds the single currently open unit of an aggregation. It is a value:
// every transition returns a new Slot together with the chunks the transition
// emits, which keeps vendor step functions free of hidden mutation.
//
// A Slot never holds a closed unit, a Finish, or a Usage chunk.
type Slot struct {
	open Chunk
}

// Open returns the open unit, or nil when the slot is empty.
func (s Slot) Open() Chunk {
	return s.open
}

// Empty reports whether no unit is open.
func (s Slot) Empty() bool {
	return s.open == nil
}

// Text returns the open unit if it is a Text.
func (s Slot) Text() (Text, bool) {
	t, ok := s.open.(Text)
	return t, ok
}

// ToolCall returns the open unit if it is a ToolCall.
func (s Slot) ToolCall() (ToolCall, bool) {
	t, ok := s.open.(ToolCall)
	return t, ok
}

// Replace closes the open unit, if any, and opens next in its place. The
// returned chunks hold the closing emission only; emitting next is up to the
// caller, which usually mutates it first.
func (s Slot) Replace(next Chunk) (Slot, []Chunk) {
	if !IsUnit(next) {
		return s, nil
	}
	s, out := s.Close()
	s.open = open(next)
	return s, out
}

// Update stores a new state of the open unit and returns its emission. The
// unit keeps its identity, so Update never closes anything.
func (s Slot) Update(c Chunk) (Slot, Chunk) {
	if !IsUnit(c) {
		return s, c
	}
	s.open = open(c)
	return s, s.open
}

// Close emits the open unit one final time with Done set and empties the
// slot. Closing an empty slot emits nothing.
func (s Slot) Close() (Slot, []Chunk) {
	if s.open == nil {
		return s, nil
	}
	closed := Close(s.open)
	s.open = nil
	return s, []Chunk{closed}
}

// Discard empties the slot without emitting a closing copy.
func (s Slot) Discard() Slot {
	s.open = nil
	return s
}

func open(c Chunk) Chunk {
	switch v := c.(type) {
	case Text:
		v.Done = false
		return v
	case ToolCall:
		v.Done = false
		return v
	default:
		return c
	}
}
