// Package stream is the generic normalization pipeline: a framer feeding one
// vendor aggregator, handing canonical chunks to the consumer one at a time.
//
// ┌────────────────┐   ┌────────────┐   ┌──────────────────────┐   ┌──────────┐
// │ FragmentSource │──▶│ sse.Framer │──▶│ provider.Aggregator  │──▶│ Next()   │
// └────────────────┘   └────────────┘   └──────────────────────┘   └──────────┘
//
// Everything is pulled: nothing is read from the source until the consumer
// asks for the next chunk, and a consumer that stops early calls Close to
// release the source.
package stream

import (
	"errors"
	"log/slog"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/llm/provider"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/sse"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

// Options configures a Stream.
type Options struct {
	// IDs mints unit ids. Defaults to chunk.UUIDSource("").
	IDs chunk.IDSource

	// Logger receives per-line and per-event diagnostics. Defaults to a nop logger.
	Logger *slog.Logger
}

// Stream is one normalized completion stream. It is not safe for concurrent
// use; each Stream owns private aggregation state, so separate streams never
// interfere.
type Stream struct {
	provider string
	framer   *sse.Framer
	agg      provider.Aggregator
	logger   *slog.Logger

	pending []chunk.Chunk
	dropped int
	done    bool
	closed  bool
}

// New returns a Stream decoding src with p's framing and aggregation.
func New(src sse.FragmentSource, p provider.Provider, opts Options) *Stream {
	if opts.IDs == nil {
		opts.IDs = chunk.UUIDSource("")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	log := opts.Logger.With("provider", p.Name())

	return &Stream{
		provider: p.Name(),
		framer:   sse.NewFramer(src, p.Framing(), log),
		agg:      p.NewAggregator(opts.IDs),
		logger:   log,
	}
}

// Next returns the next chunk. A nil chunk with a nil error means the stream
// ended cleanly, after any unit still open was closed. A transport failure is
// returned as-is and ends the stream without closing the open unit.
func (s *Stream) Next() (chunk.Chunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}

	for len(s.pending) == 0 {
		if s.done {
			return nil, nil
		}

		payload, err := s.framer.Next()
		if err != nil {
			s.done = true
			return nil, err
		}

		if payload == nil {
			s.done = true
			s.pending = append(s.pending, s.agg.Flush()...)
			continue
		}

		out, err := s.agg.Apply(payload)
		if err != nil {
			s.dropped++
			s.logger.Warn("skipping undecodable stream event", "error", err)
			continue
		}
		s.pending = append(s.pending, out...)
	}

	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}

// Close releases the source. No chunk is returned after Close.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return s.framer.Close()
}

// Provider returns the name of the vendor adapter in use.
func (s *Stream) Provider() string {
	return s.provider
}

// Skipped reports how many lines and events were dropped as malformed.
func (s *Stream) Skipped() int {
	return s.framer.Skipped() + s.dropped
}

// Drain reads s to the end and closes it. On a transport failure the chunks
// read so far are returned with the error.
func Drain(s *Stream) ([]chunk.Chunk, error) {
	defer s.Close()

	var out []chunk.Chunk
	for {
		c, err := s.Next()
		if err != nil {
			return out, err
		}
		if c == nil {
			return out, nil
		}
		out = append(out, c)
	}
}
