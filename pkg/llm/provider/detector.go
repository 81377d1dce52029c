package provider

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/papercomputeco/deltas/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/deltas/pkg/llm/provider/ollama"
	"github.com/papercomputeco/deltas/pkg/llm/provider/openai"
	"github.com/papercomputeco/deltas/pkg/sse"
)

// ErrUndetected is returned when no registered provider recognizes a stream.
var ErrUndetected = errors.New("could not detect provider")

// Detector manages provider detection by checking registered providers in order.
type Detector struct {
	providers []Provider
}

// NewDetector creates a new Detector with the default set of providers.
// Providers are checked in order: Anthropic, OpenAI, then Ollama.
func NewDetector() *Detector {
	return &Detector{
		providers: []Provider{
			anthropic.New(),
			openai.New(),
			ollama.New(),
		},
	}
}

// Detect returns the first registered provider that reports it can handle
// the payload.
func (d *Detector) Detect(payload []byte) (Provider, bool) {
	for _, p := range d.providers {
		if p.CanHandle(payload) {
			return p, true
		}
	}
	return nil, false
}

// DetectRaw identifies the vendor of a recorded response body. The framing is
// sniffed from the first non-blank line, then framed payloads are offered to
// the providers using that framing until one claims a payload.
func (d *Detector) DetectRaw(raw []byte) (Provider, error) {
	framing, ok := SniffFraming(raw)
	if !ok {
		return nil, fmt.Errorf("%w: empty stream", ErrUndetected)
	}

	framer := sse.NewFramer(sse.NewFragments(string(raw)), framing, nil)
	defer framer.Close()

	for {
		payload, err := framer.Next()
		if err != nil {
			return nil, fmt.Errorf("framing recorded stream: %w", err)
		}
		if payload == nil {
			return nil, fmt.Errorf("%w: no %s payload matched a provider", ErrUndetected, framing)
		}

		for _, p := range d.providers {
			if p.Framing() == framing && p.CanHandle(payload) {
				return p, nil
			}
		}
	}
}

// SniffFraming guesses the framing of a raw body from its first non-blank
// line: SSE field lines ("data:", "event:", "id:", ":" comments) mean SSE,
// anything else is read as NDJSON.
func SniffFraming(raw []byte) (sse.Framing, bool) {
	for line := range bytes.Lines(raw) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		for _, prefix := range [][]byte{[]byte("data:"), []byte("event:"), []byte("id:"), []byte(":")} {
			if bytes.HasPrefix(line, prefix) {
				return sse.FramingSSE, true
			}
		}
		return sse.FramingNDJSON, true
	}
	return sse.FramingSSE, false
}
