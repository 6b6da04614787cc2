// Package memstatecmder
package memstatecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/memstate/cmd/memstate/config"
	contextcmder "github.com/papercomputeco/memstate/cmd/memstate/context"
	gatecmder "github.com/papercomputeco/memstate/cmd/memstate/gate"
	initcmder "github.com/papercomputeco/memstate/cmd/memstate/init"
	replaycmder "github.com/papercomputeco/memstate/cmd/memstate/replay"
	servecmder "github.com/papercomputeco/memstate/cmd/memstate/serve"
	watchcmder "github.com/papercomputeco/memstate/cmd/memstate/watch"
	versioncmder "github.com/papercomputeco/memstate/cmd/version"
)

const memstateLongDesc string = `memstate is a patch-based memory graph for agents.

A model proposes JSON patches against a graph of facts, unknowns,
assumptions, actions and plans. Every batch is validated, applied
atomically and reconciled, and the gate decides whether a kind of work
may proceed.

Run the server and inspect logs using:
  memstate serve      Run the API and MCP server
  memstate replay     Rebuild a state from its mutation log
  memstate context    Render the context view of a state
  memstate gate       Report which kinds may execute
  memstate watch      Follow a JSONL mutation log
  memstate init       Create a local .memstate/ directory`

const memstateShortDesc string = "memstate - reactive agent memory"

func NewMemstateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "memstate",
		Short:        memstateShortDesc,
		Long:         memstateLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .memstate config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(contextcmder.NewContextCmd())
	cmd.AddCommand(gatecmder.NewGateCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
