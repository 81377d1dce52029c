// Package replaycmder provides the replay command, which normalizes a
// recorded response body offline.
package replaycmder

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/cmd/deltas/setup"
	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/cliui"
	"github.com/papercomputeco/deltas/pkg/llm/provider"
	"github.com/papercomputeco/deltas/pkg/sse"
	"github.com/papercomputeco/deltas/pkg/stream"
)

const replayLongDesc string = `Replay a recorded response body through the normalizer.

The file holds a raw vendor stream, such as one written by
"deltas stream --record". The provider is detected from the body unless
--provider is given. Use "-" to read the body from stdin.

Examples:
  deltas replay raw.sse
  deltas replay --json --seq-ids raw.sse
  deltas replay --fragment-size 7 raw.sse
  curl -sN ... | deltas replay -p openai -`

const replayShortDesc string = "Normalize a recorded stream offline"

type replayCommander struct {
	provider string
	json     bool
	verbose  bool
	seqIDs   bool
	fragSize int
}

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Provider that produced the body (default: detect)")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Write every chunk as an NDJSON line")
	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Print finish reasons, token usage and skipped lines")
	cmd.Flags().BoolVar(&cmder.seqIDs, "seq-ids", false, "Number units id-1, id-2, ... instead of random ids")
	cmd.Flags().IntVar(&cmder.fragSize, "fragment-size", 0, "Feed the body in fragments of this many bytes (0: one fragment)")

	return cmd
}

func (c *replayCommander) run(cmd *cobra.Command, path string) error {
	raw, err := readBody(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	g := setup.GlobalFlags(cmd)
	log, closeLog, err := setup.NewLogger(g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	var p provider.Provider
	if c.provider != "" {
		p, err = provider.New(c.provider)
	} else {
		p, err = provider.NewDetector().DetectRaw(raw)
	}
	if err != nil {
		return err
	}
	log.Debug("replaying recorded stream", "provider", p.Name(), "bytes", len(raw))

	ids := chunk.UUIDSource("")
	if c.seqIDs {
		ids = chunk.Sequence("id")
	}

	if c.fragSize < 0 {
		return fmt.Errorf("invalid --fragment-size %d", c.fragSize)
	}

	st := stream.New(sse.Split(string(raw), c.fragSize), p, stream.Options{IDs: ids, Logger: log})
	defer st.Close()

	r := setup.NewRenderer(cmd.OutOrStdout(), setup.RenderOptions{JSON: c.json, Verbose: c.verbose})
	for {
		ch, err := st.Next()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		if ch == nil {
			break
		}
		if err := r.Render(ch); err != nil {
			return err
		}
	}
	if err := r.Done(); err != nil {
		return err
	}

	if c.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(p.Name()),
			cliui.DimStyle.Render(fmt.Sprintf("(%d skipped)", st.Skipped())),
		)
	}
	return nil
}

func readBody(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recorded stream: %w", err)
	}
	return data, nil
}
