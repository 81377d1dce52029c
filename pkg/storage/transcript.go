package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// Transcript is one finished turn. Chunks holds the final emission of every
// unit in the order the units were opened.
type Transcript struct {
	ID          string           `json:"id"`
	Provider    string           `json:"provider"`
	Model       string           `json:"model"`
	Prompt      string           `json:"prompt,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Skipped     int              `json:"skipped,omitempty"`
	Chunks      []chunk.Envelope `json:"chunks"`
}

// NewTranscript wraps finals into a Transcript.
func NewTranscript(id, provider, model string, finals []chunk.Chunk) *Transcript {
	t := &Transcript{
		ID:       id,
		Provider: provider,
		Model:    model,
		Chunks:   make([]chunk.Envelope, 0, len(finals)),
	}
	for _, c := range finals {
		t.Chunks = append(t.Chunks, chunk.Wrap(c))
	}
	return t
}

// Validate checks the fields every backend requires.
func (t *Transcript) Validate() error {
	if t == nil {
		return errors.New("cannot store nil transcript")
	}
	if t.ID == "" {
		return errors.New("transcript has no id")
	}
	return nil
}

// Text joins the text units of the transcript.
func (t *Transcript) Text() string {
	var parts []string
	for _, env := range t.Chunks {
		if env.Type == chunk.TypeText {
			parts = append(parts, env.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FinishReason is the reason of the last finish chunk, or "" if the stream
// never reported one.
func (t *Transcript) FinishReason() chunk.FinishReason {
	var reason chunk.FinishReason
	for _, env := range t.Chunks {
		if env.Type == chunk.TypeFinish {
			reason = env.Reason
		}
	}
	return reason
}

// Usage is the counts of the last usage chunk, or nil.
func (t *Transcript) Usage() *chunk.UsageCounts {
	var usage *chunk.UsageCounts
	for _, env := range t.Chunks {
		if env.Type == chunk.TypeUsage && env.Usage != nil {
			usage = env.Usage
		}
	}
	return usage
}

// Duration is the wall time between the request and the end of the stream.
func (t *Transcript) Duration() time.Duration {
	if t.CompletedAt.IsZero() || t.StartedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
