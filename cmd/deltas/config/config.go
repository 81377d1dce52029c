// Package configcmder provides the config command for managing persistent
// deltas configuration stored in the .deltas/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent deltas configuration.

Configuration is stored as config.toml in the .deltas/ directory and provides
default values for command flags. DELTAS_* environment variables override the
file, and CLI flags always take precedence over both.

Keys use dotted notation matching the TOML section structure:
  provider.name, provider.endpoint, provider.model, provider.max_tokens,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  publish.kafka_brokers, publish.kafka_topic,
  recorder.workers

Use subcommands to get, set, or list configuration values:
  deltas config set <key> <value>    Set a configuration value
  deltas config get <key>            Get a configuration value
  deltas config list                 List all configuration values

Examples:
  deltas config set provider.name anthropic
  deltas config set publish.kafka_brokers localhost:9092
  deltas config get provider.model
  deltas config list`

const configShortDesc string = "Manage persistent deltas configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// validKeyCompletion completes the key argument of get and set.
func validKeyCompletion(keys func() []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
