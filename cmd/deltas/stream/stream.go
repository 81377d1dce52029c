// Package streamcmder provides the stream command, which sends one prompt and
// prints the normalized reply as it arrives.
package streamcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/cmd/deltas/setup"
	"github.com/papercomputeco/deltas/pkg/cliui"
	"github.com/papercomputeco/deltas/pkg/config"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/session"
	"github.com/papercomputeco/deltas/pkg/utils"
)

const streamLongDesc string = `Send a prompt and stream the normalized reply.

The prompt is taken from the arguments, or from stdin when no arguments are
given. Text is printed as it grows; tool calls are printed once complete.
With --json every canonical chunk is written as one NDJSON line instead.

Finished transcripts are stored in the configured store (SQLite in .deltas/
by default) and, when Kafka brokers are configured, every chunk is published
as it is emitted.

Examples:
  deltas stream "why is the sky blue?"
  deltas stream -p anthropic -m claude-sonnet-4-5 "write a haiku"
  echo "summarize this" | deltas stream --json
  deltas stream -p openai --record raw.sse "hello"`

const streamShortDesc string = "Stream one chat completion"

// Keys are the registry flags shared by commands that stream.
var Keys = []string{
	config.FlagProvider,
	config.FlagModel,
	config.FlagEndpoint,
	config.FlagMaxTokens,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagWorkers,
}

// Options are the request and rendering flags shared by stream and chat.
type Options struct {
	provider     string
	model        string
	endpoint     string
	maxTokens    uint
	storage      string
	sqlitePath   string
	postgresDSN  string
	kafkaBrokers string
	kafkaTopic   string
	workers      uint

	System      string
	Temperature float64
	Headers     []string
	JSON        bool
	Markdown    bool
	Verbose     bool
}

// AddFlags registers the shared flags on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &o.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &o.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagEndpoint, &o.endpoint)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &o.maxTokens)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &o.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &o.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &o.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &o.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &o.kafkaTopic)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &o.workers)

	cmd.Flags().StringVar(&o.System, "system", "", "System prompt")
	cmd.Flags().Float64Var(&o.Temperature, "temperature", 0, "Sampling temperature (default: provider default)")
	cmd.Flags().StringArrayVarP(&o.Headers, "header", "H", nil, `Extra request header, "Name: value" (repeatable)`)
	cmd.Flags().BoolVar(&o.JSON, "json", false, "Write every chunk as an NDJSON line")
	cmd.Flags().BoolVar(&o.Markdown, "markdown", false, "Render the reply as markdown once it completes")
	cmd.Flags().BoolVarP(&o.Verbose, "verbose", "v", false, "Print finish reasons and token usage")
}

// Template builds the per-turn request fields from the resolved config and
// the shared flags.
func (o *Options) Template(cmd *cobra.Command, cfg *config.Config) llm.ChatRequest {
	req := llm.ChatRequest{
		Model:  cfg.Provider.Model,
		System: o.System,
	}
	if cfg.Provider.MaxTokens > 0 {
		req.MaxTokens = llm.Ptr(int(cfg.Provider.MaxTokens))
	}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = llm.Ptr(o.Temperature)
	}
	return req
}

type streamCommander struct {
	opts   Options
	record string
}

func NewStreamCmd() *cobra.Command {
	cmder := &streamCommander{}

	cmd := &cobra.Command{
		Use:   "stream [prompt...]",
		Short: streamShortDesc,
		Long:  streamLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	cmder.opts.AddFlags(cmd)
	cmd.Flags().StringVar(&cmder.record, "record", "", "Write the raw response body to this file")

	return cmd
}

func (c *streamCommander) run(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	headers, err := setup.ParseHeaders(c.opts.Headers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	clientOpts := setup.ClientOptions{Headers: headers}
	if c.record != "" {
		f, err := os.Create(c.record)
		if err != nil {
			return fmt.Errorf("creating record file: %w", err)
		}
		defer f.Close()
		clientOpts.Record = f
	}

	rt, err := setup.Open(ctx, cmd, Keys, clientOpts)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, err := session.New(session.Config{
		Client:    rt.Client,
		Renderer:  setup.NewRenderer(cmd.OutOrStdout(), setup.RenderOptions{JSON: c.opts.JSON, Markdown: c.opts.Markdown, Verbose: c.opts.Verbose}),
		Publisher: rt.Publisher,
		Recorder:  rt.Recorder,
		Template:  c.opts.Template(cmd, rt.Config),
		Logger:    rt.Logger,
	})
	if err != nil {
		return err
	}

	t, err := sess.Send(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	if c.opts.Verbose && !c.opts.JSON {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s\n",
			cliui.SuccessMark,
			cliui.HashStyle.Render(utils.Truncate(t.ID, 8)),
			cliui.DimStyle.Render(cliui.FormatDuration(t.Duration())),
		)
	}
	return nil
}

// readPrompt joins args, or reads all of stdin when there are none.
func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if setup.IsTerminal(stdin) {
		return "", errors.New("prompt required: pass it as arguments or pipe it on stdin")
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("prompt required: stdin was empty")
	}
	return prompt, nil
}
