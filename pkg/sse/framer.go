package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/utils"
)

// Framing selects how a Framer splits lines into payloads.
type Framing int

const (
	// FramingSSE reads "data: <json>" lines and stops at the "[DONE]" sentinel.
	FramingSSE Framing = iota

	// FramingNDJSON treats every non-blank line as a JSON payload.
	FramingNDJSON
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	// maxLoggedPayload bounds how much of a malformed line reaches the logs.
	maxLoggedPayload = 200
)

// String returns the framing name.
func (f Framing) String() string {
	switch f {
	case FramingSSE:
		return "sse"
	case FramingNDJSON:
		return "ndjson"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// Framer turns a FragmentSource into a sequence of parsed JSON payloads.
// It buffers at most one partial line between fragments.
type Framer struct {
	src     FragmentSource
	framing Framing
	logger  *slog.Logger

	buf      string
	done     bool
	released bool
	skipped  int
}

// NewFramer returns a Framer pulling from src. A nil logger discards
// diagnostics.
func NewFramer(src FragmentSource, framing Framing, log *slog.Logger) *Framer {
	if log == nil {
		log = logger.Nop()
	}
	return &Framer{
		src:     src,
		framing: framing,
		logger:  log,
	}
}

// Next returns the next well-formed payload. A nil payload with a nil error
// means the sequence ended, either at the terminator sentinel or at upstream
// EOF; any incomplete trailing line is discarded. Malformed lines are logged
// and skipped. An upstream read failure is returned once and ends the sequence.
//
// The source is released as soon as the sequence ends.
func (f *Framer) Next() (json.RawMessage, error) {
	for !f.done {
		i := strings.IndexByte(f.buf, '\n')
		if i < 0 {
			fragment, err := f.src.Next()
			if err != nil {
				f.end()
				if errors.Is(err, io.EOF) {
					if strings.TrimSpace(f.buf) != "" {
						f.logger.Debug("discarding incomplete trailing line",
							"bytes", len(f.buf),
						)
					}
					f.buf = ""
					return nil, nil
				}
				f.buf = ""
				return nil, fmt.Errorf("reading stream: %w", err)
			}
			f.buf += fragment
			continue
		}

		line := strings.TrimSpace(f.buf[:i])
		f.buf = f.buf[i+1:]

		payload, ok := f.payload(line)
		if !ok {
			continue
		}

		if f.framing == FramingSSE && payload == doneSentinel {
			f.end()
			f.buf = ""
			return nil, nil
		}

		if !json.Valid([]byte(payload)) {
			f.skipped++
			f.logger.Warn("skipping malformed stream line",
				"framing", f.framing.String(),
				"payload", utils.Truncate(payload, maxLoggedPayload),
			)
			continue
		}

		return json.RawMessage(payload), nil
	}

	return nil, nil
}

// Close ends the sequence early and releases the source.
func (f *Framer) Close() error {
	f.done = true
	f.buf = ""
	return f.release()
}

// Skipped reports how many lines were dropped as malformed.
func (f *Framer) Skipped() int {
	return f.skipped
}

// payload extracts the candidate payload of a trimmed line. The second return
// value is false for lines that carry no payload at all.
func (f *Framer) payload(line string) (string, bool) {
	if line == "" {
		return "", false
	}

	if f.framing == FramingNDJSON {
		return line, true
	}

	rest, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		// event:, id:, retry: and ":" comment lines
		return "", false
	}

	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", false
	}
	return rest, true
}

func (f *Framer) end() {
	f.done = true
	if err := f.release(); err != nil {
		f.logger.Debug("error releasing stream source", "error", err)
	}
}

func (f *Framer) release() error {
	if f.released {
		return nil
	}
	f.released = true
	return f.src.Close()
}
