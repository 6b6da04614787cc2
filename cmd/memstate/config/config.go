// Package configcmder provides the config command for managing persistent
// memstate configuration stored in the .memstate/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent memstate configuration.

Configuration is stored as config.toml in the .memstate/ directory and
provides default values for command flags. CLI flags and MEMSTATE_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.target, storage.token,
  api.listen, client.api_target,
  context.budget, context.history_depth, context.include_history,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  worker.num_workers, worker.queue_size

Use subcommands to get, set, or list configuration values:
  memstate config set <key> <value>    Set a configuration value
  memstate config get <key>            Get a configuration value
  memstate config list                 List all configuration values

Examples:
  memstate config set storage.provider sqlite
  memstate config set eventstream.brokers kafka-1:9092,kafka-2:9092
  memstate config get context.budget
  memstate config list`

const configShortDesc string = "Manage persistent memstate configuration"

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

func configDirFlag(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}
