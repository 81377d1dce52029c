package setup

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/papercomputeco/deltas/pkg/cliui"
)

// RenderOptions selects the chunk renderer.
type RenderOptions struct {
	JSON     bool
	Markdown bool
	Verbose  bool
}

// NewRenderer returns an NDJSON renderer when JSON is set and a text renderer
// otherwise. Markdown wraps to the terminal width when w is a terminal.
func NewRenderer(w io.Writer, opts RenderOptions) cliui.Renderer {
	if opts.JSON {
		return cliui.NewJSONRenderer(w)
	}

	width := 0
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols
		}
	}

	return cliui.NewTextRenderer(w, cliui.TextRendererOptions{
		Markdown: opts.Markdown,
		Width:    width,
		Verbose:  opts.Verbose,
	})
}

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
