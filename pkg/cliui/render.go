package cliui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/deltas/pkg/chunk"
)

// Renderer writes a canonical chunk sequence to a terminal or pipe.
type Renderer interface {
	Render(c chunk.Chunk) error

	// Done is called once after the last chunk of a turn.
	Done() error
}

// TextRendererOptions tunes a TextRenderer.
type TextRendererOptions struct {
	// Markdown holds text back and renders it through glamour at Done.
	Markdown bool

	// Width is the markdown wrap width. Zero means 80.
	Width int

	// Verbose prints finish reasons and token usage.
	Verbose bool
}

// TextRenderer prints text as it grows and tool calls as they close.
type TextRenderer struct {
	w    io.Writer
	opts TextRendererOptions

	printed map[string]int
	text    strings.Builder
	midLine bool
}

// NewTextRenderer returns a TextRenderer writing to w.
func NewTextRenderer(w io.Writer, opts TextRendererOptions) *TextRenderer {
	return &TextRenderer{
		w:       w,
		opts:    opts,
		printed: make(map[string]int),
	}
}

// Render prints what c adds over the previous emission of its unit. Text
// chunks carry the full value so far, so only the new suffix is written.
func (r *TextRenderer) Render(c chunk.Chunk) error {
	switch v := c.(type) {
	case chunk.Text:
		return r.renderText(v)

	case chunk.ToolCall:
		if !v.Done {
			return nil
		}
		r.breakLine()
		_, err := fmt.Fprintf(r.w, "%s %s\n",
			ToolStyle.Render("⚙ "+v.Name),
			DimStyle.Render(v.Arguments),
		)
		return err

	case chunk.Finish:
		if !r.opts.Verbose {
			return nil
		}
		r.breakLine()
		_, err := fmt.Fprintln(r.w, DimStyle.Render("finish: "+string(v.Reason)))
		return err

	case chunk.Usage:
		if !r.opts.Verbose {
			return nil
		}
		r.breakLine()
		_, err := fmt.Fprintln(r.w, DimStyle.Render(fmt.Sprintf("tokens: %d in / %d out / %d total",
			v.PromptTokens, v.CompletionTokens, v.TotalTokens)))
		return err
	}
	return nil
}

func (r *TextRenderer) renderText(t chunk.Text) error {
	seen := r.printed[t.ID]
	if seen > len(t.Text) {
		seen = 0
	}
	suffix := t.Text[seen:]
	r.printed[t.ID] = len(t.Text)

	if r.opts.Markdown {
		r.text.WriteString(suffix)
		if t.Done {
			r.text.WriteString("\n\n")
		}
		return nil
	}

	if suffix != "" {
		if _, err := io.WriteString(r.w, suffix); err != nil {
			return err
		}
		r.midLine = !strings.HasSuffix(suffix, "\n")
	}
	if t.Done {
		r.breakLine()
	}
	return nil
}

// Done flushes held markdown and ends any partial line.
func (r *TextRenderer) Done() error {
	if r.opts.Markdown && r.text.Len() > 0 {
		out, err := RenderMarkdown(r.text.String(), r.opts.Width)
		r.text.Reset()
		if _, werr := io.WriteString(r.w, out); werr != nil {
			return werr
		}
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
	}
	r.breakLine()
	return nil
}

func (r *TextRenderer) breakLine() {
	if r.midLine {
		fmt.Fprintln(r.w)
		r.midLine = false
	}
}

// JSONRenderer writes one chunk envelope per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a JSONRenderer writing NDJSON to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(c chunk.Chunk) error {
	if err := r.enc.Encode(chunk.Wrap(c)); err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	return nil
}

func (r *JSONRenderer) Done() error { return nil }
