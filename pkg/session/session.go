// Package session runs streamed chat turns end to end: it sends the request,
// renders every canonical chunk as it arrives, publishes chunk events and
// hands the finished transcript to the recorder.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/deltas/pkg/client"
	"github.com/papercomputeco/deltas/pkg/cliui"
	"github.com/papercomputeco/deltas/pkg/eventstream"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/recorder"
	"github.com/papercomputeco/deltas/pkg/storage"
	"github.com/papercomputeco/deltas/pkg/stream"
)

// Config wires a Session.
type Config struct {
	// Client sends requests. Required.
	Client *client.Client

	// Renderer receives every chunk. Required.
	Renderer cliui.Renderer

	// Publisher receives one event per chunk. Optional.
	Publisher eventstream.Publisher

	// Recorder persists finished transcripts. Optional.
	Recorder *recorder.Pool

	// Template supplies model, system prompt and generation parameters for
	// every turn. Messages in it are ignored.
	Template llm.ChatRequest

	// Logger defaults to a nop logger.
	Logger *slog.Logger
}

// Session holds the conversation history of a chat.
type Session struct {
	client    *client.Client
	renderer  cliui.Renderer
	publisher eventstream.Publisher
	recorder  *recorder.Pool
	template  llm.ChatRequest
	logger    *slog.Logger

	history []llm.Message
}

// New validates cfg and returns a Session.
func New(cfg Config) (*Session, error) {
	if cfg.Client == nil {
		return nil, errors.New("session needs a client")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("session needs a renderer")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Session{
		client:    cfg.Client,
		renderer:  cfg.Renderer,
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		template:  cfg.Template,
		logger:    log.With("component", "session"),
	}, nil
}

// History returns the messages exchanged so far.
func (s *Session) History() []llm.Message {
	return append([]llm.Message(nil), s.history...)
}

// Send appends prompt as a user message, streams the reply and, when the
// stream completes, appends the assistant text to the history. A failed turn
// leaves the history unchanged.
func (s *Session) Send(ctx context.Context, prompt string) (*storage.Transcript, error) {
	req := s.template
	req.Messages = append(s.History(), llm.NewTextMessage(llm.RoleUser, prompt))

	t, err := s.Run(ctx, &req)
	if err != nil {
		return t, err
	}

	s.history = req.Messages
	if text := t.Text(); text != "" {
		s.history = append(s.history, llm.NewTextMessage(llm.RoleAssistant, text))
	}
	return t, nil
}

// Run streams one request without touching the history. The returned
// transcript holds whatever was received, even when err is non-nil; only
// completed streams are handed to the recorder.
func (s *Session) Run(ctx context.Context, req *llm.ChatRequest) (*storage.Transcript, error) {
	started := time.Now().UTC()

	st, err := s.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	model := req.Model
	if model == "" {
		model = s.client.Provider().DefaultModel()
	}

	streamID := uuid.NewString()
	src := eventstream.EventSource{Provider: st.Provider(), Model: model}
	acc := stream.NewAccumulator()
	log := s.logger.With("stream", streamID)

	seq := 0
	var streamErr error
	for {
		c, err := st.Next()
		if err != nil {
			streamErr = fmt.Errorf("reading stream: %w", err)
			break
		}
		if c == nil {
			break
		}

		seq++
		acc.Apply(c)
		if err := s.renderer.Render(c); err != nil {
			streamErr = fmt.Errorf("rendering chunk: %w", err)
			break
		}

		if s.publisher != nil {
			if err := s.publisher.PublishChunk(ctx, eventstream.NewChunkEvent(streamID, seq, src, c)); err != nil {
				log.Warn("chunk publish failed", "seq", seq, "error", err)
			}
		}
	}

	if err := s.renderer.Done(); err != nil && streamErr == nil {
		streamErr = fmt.Errorf("rendering: %w", err)
	}

	t := storage.NewTranscript(streamID, st.Provider(), model, acc.Final())
	t.Prompt = lastUserText(req.Messages)
	t.StartedAt = started
	t.CompletedAt = time.Now().UTC()
	t.Skipped = st.Skipped()

	log.Debug("stream finished",
		"chunks", seq,
		"units", len(t.Chunks),
		"skipped", t.Skipped,
		"duration", t.Duration(),
	)

	if streamErr != nil {
		log.Error("stream failed", "chunks", seq, "error", streamErr)
		return t, streamErr
	}

	if s.recorder != nil {
		s.recorder.Enqueue(recorder.Job{Transcript: t})
	}
	return t, nil
}

func lastUserText(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].GetText()
		}
	}
	return ""
}
