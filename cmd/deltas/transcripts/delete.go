package transcriptscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/pkg/cliui"
)

const deleteShortDesc string = "Delete a stored transcript"

func newDeleteCmd() *cobra.Command {
	var flags storageFlags

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: deleteShortDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, log, done, err := openDriver(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := driver.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Debug("transcript deleted", "transcript", args[0])

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Deleted %s\n\n", cliui.SuccessMark, cliui.HashStyle.Render(args[0]))
			return nil
		},
	}

	flags.add(cmd)

	return cmd
}
