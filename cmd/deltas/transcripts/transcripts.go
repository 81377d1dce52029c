// Package transcriptscmder provides the transcripts command for browsing
// stored transcripts.
package transcriptscmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/cmd/deltas/setup"
	"github.com/papercomputeco/deltas/pkg/config"
	"github.com/papercomputeco/deltas/pkg/storage"
)

const transcriptsLongDesc string = `Browse stored transcripts.

Transcripts hold the final state of every unit of a finished stream. They are
read from the configured store (SQLite in .deltas/ by default).

Examples:
  deltas transcripts list
  deltas transcripts list --provider anthropic --limit 5
  deltas transcripts show 3f2a9c1e-...
  deltas transcripts show --json 3f2a9c1e-...
  deltas transcripts delete 3f2a9c1e-...`

const transcriptsShortDesc string = "Browse stored transcripts"

var storageKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

// storageFlags are the storage flags every subcommand takes.
type storageFlags struct {
	driver      string
	sqlitePath  string
	postgresDSN string
}

func (f *storageFlags) add(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &f.driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &f.postgresDSN)
}

func NewTranscriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transcripts",
		Aliases: []string{"t"},
		Short:   transcriptsShortDesc,
		Long:    transcriptsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

// openDriver resolves the configured store for cmd.
func openDriver(ctx context.Context, cmd *cobra.Command) (storage.Driver, *slog.Logger, func(), error) {
	g := setup.GlobalFlags(cmd)
	log, closeLog, err := setup.NewLogger(g, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := setup.LoadConfig(cmd, g.ConfigDir, storageKeys)
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	driver, err := setup.NewStorageDriver(ctx, cfg, g.ConfigDir, log)
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, err
	}
	if driver == nil {
		_ = closeLog()
		return nil, nil, nil, errors.New(`transcript storage is disabled (storage.driver = "none")`)
	}

	return driver, log, func() {
		_ = driver.Close()
		_ = closeLog()
	}, nil
}
