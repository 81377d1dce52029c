// Package chatcmder provides the chat command for an interactive streamed
// conversation with any supported provider.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/cmd/deltas/setup"
	streamcmder "github.com/papercomputeco/deltas/cmd/deltas/stream"
	"github.com/papercomputeco/deltas/pkg/cliui"
	"github.com/papercomputeco/deltas/pkg/session"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const chatLongDesc string = `Start an interactive chat session.

Every reply is streamed through the same normalization as "deltas stream",
and the whole conversation is sent with each turn. Each finished turn is
stored as its own transcript.

Type /exit or press Ctrl+D to quit, /reset to forget the conversation so far.
Ctrl+C cancels the reply in flight.

Examples:
  deltas chat
  deltas chat -p anthropic --system "answer in one sentence"
  deltas chat -p openai -m gpt-4o --markdown`

const chatShortDesc string = "Interactive streamed chat"

type chatCommander struct {
	opts streamcmder.Options
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmder.opts.AddFlags(cmd)

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	headers, err := setup.ParseHeaders(c.opts.Headers)
	if err != nil {
		return err
	}

	rt, err := setup.Open(cmd.Context(), cmd, streamcmder.Keys, setup.ClientOptions{Headers: headers})
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	newSession := func() (*session.Session, error) {
		return session.New(session.Config{
			Client:    rt.Client,
			Renderer:  setup.NewRenderer(out, setup.RenderOptions{JSON: c.opts.JSON, Markdown: c.opts.Markdown, Verbose: c.opts.Verbose}),
			Publisher: rt.Publisher,
			Recorder:  rt.Recorder,
			Template:  c.opts.Template(cmd, rt.Config),
			Logger:    rt.Logger,
		})
	}
	sess, err := newSession()
	if err != nil {
		return err
	}

	model := rt.Config.Provider.Model
	if model == "" {
		model = rt.Client.Provider().DefaultModel()
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s %s  %s %s\n",
		cliui.KeyStyle.Render("Provider:"),
		cliui.NameStyle.Render(rt.Client.Provider().Name()),
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(model),
	)
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(out)
			return nil
		case "/reset":
			if sess, err = newSession(); err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s %s\n\n", cliui.DimStyle.Render("●"), "New conversation")
			continue
		}

		if !c.opts.JSON {
			fmt.Fprint(out, assistantPrompt)
		}
		if err := c.turn(cmd.Context(), sess, input); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s %v\n", cliui.FailMark, err)
		}
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(out)
	return nil
}

// turn streams one reply; Ctrl+C cancels only this turn.
func (c *chatCommander) turn(ctx context.Context, sess *session.Session, input string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_, err := sess.Send(ctx, input)
	if errors.Is(err, context.Canceled) {
		return errors.New("reply cancelled")
	}
	return err
}
