package transcriptscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/pkg/cliui"
	"github.com/papercomputeco/deltas/pkg/storage"
	"github.com/papercomputeco/deltas/pkg/utils"
)

const listShortDesc string = "List stored transcripts, newest first"

func newListCmd() *cobra.Command {
	var (
		flags    storageFlags
		provider string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver, _, done, err := openDriver(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer done()

			ts, err := driver.List(cmd.Context(), storage.ListOptions{Provider: provider, Limit: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ts) == 0 {
				fmt.Fprintf(out, "\n  %s No transcripts stored.\n\n", cliui.DimStyle.Render("●"))
				return nil
			}

			fmt.Fprintln(out)
			for _, t := range ts {
				fmt.Fprintf(out, "  %s  %s  %-10s %s  %s\n",
					cliui.HashStyle.Render(t.ID),
					cliui.DimStyle.Render(t.StartedAt.Local().Format("2006-01-02 15:04:05")),
					t.Provider,
					cliui.DimStyle.Render(fmt.Sprintf("%6s", cliui.FormatDuration(t.Duration()))),
					utils.Truncate(oneLine(t.Prompt), 48),
				)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	flags.add(cmd)
	cmd.Flags().StringVar(&provider, "provider", "", "Only list transcripts from this provider")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum transcripts to list (0: all)")

	return cmd
}
