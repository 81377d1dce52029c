package transcriptscmder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/cliui"
)

const showShortDesc string = "Show one stored transcript"

func newShowCmd() *cobra.Command {
	var (
		flags    storageFlags
		asJSON   bool
		markdown bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: showShortDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, _, done, err := openDriver(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer done()

			t, err := driver.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}

			fmt.Fprintf(out, "\n  %s %s\n", cliui.KeyStyle.Render("Transcript:"), cliui.HashStyle.Render(t.ID))
			fmt.Fprintf(out, "  %s %s %s\n", cliui.KeyStyle.Render("Provider:"), cliui.NameStyle.Render(t.Provider), cliui.DimStyle.Render(t.Model))
			fmt.Fprintf(out, "  %s %s %s\n", cliui.KeyStyle.Render("Started:"),
				t.StartedAt.Local().Format("2006-01-02 15:04:05"),
				cliui.DimStyle.Render("("+cliui.FormatDuration(t.Duration())+")"),
			)
			if t.Prompt != "" {
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Prompt:"), oneLine(t.Prompt))
			}
			fmt.Fprintln(out)

			if text := t.Text(); text != "" {
				if markdown {
					rendered, _ := cliui.RenderMarkdown(text, 0)
					fmt.Fprint(out, rendered)
				} else {
					fmt.Fprintf(out, "%s\n\n", text)
				}
			}

			for _, env := range t.Chunks {
				if env.Type == chunk.TypeToolCall {
					fmt.Fprintf(out, "%s %s\n", cliui.ToolStyle.Render("⚙ "+env.Name), cliui.DimStyle.Render(env.Arguments))
				}
			}

			if reason := t.FinishReason(); reason != "" {
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Finish:"), reason)
			}
			if u := t.Usage(); u != nil {
				fmt.Fprintf(out, "  %s %d in / %d out / %d total\n",
					cliui.KeyStyle.Render("Tokens:"), u.PromptTokens, u.CompletionTokens, u.TotalTokens)
			}
			if t.Skipped > 0 {
				fmt.Fprintf(out, "  %s %d\n", cliui.KeyStyle.Render("Skipped:"), t.Skipped)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	flags.add(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the transcript as JSON")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the text as markdown")

	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
