// Package replaycmder provides the replay command, which rebuilds a memory
// state from its mutation log.
package replaycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/cmd/memstate/stack"
	"github.com/papercomputeco/memstate/pkg/cliui"
	"github.com/papercomputeco/memstate/pkg/config"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/logger"
	"github.com/papercomputeco/memstate/pkg/state"
)

type ReplayCommander struct {
	configDir  string
	debug      bool
	logFile    string
	checkpoint string
	json       bool

	storageProvider string
	storageTarget   string
	storageToken    string

	out    io.Writer
	cfg    *config.Config
	dir    string
	logger *zap.Logger
}

const replayLongDesc string = `Rebuild a memory state from its mutation log.

The log is read from the configured storage, or from a JSONL file with
--log. Entries are re-applied batch by batch with their recorded
timestamps, so the result is identical to the state that wrote the log.

Examples:
  memstate replay
  memstate replay --log .memstate/store/log.jsonl
  memstate replay --from-checkpoint 0192b8c4-... --json`

const replayShortDesc string = "Rebuild a state from its mutation log"

var flagKeys = []string{
	config.FlagStorageProvider,
	config.FlagStorageTarget,
	config.FlagStorageToken,
}

func NewReplayCmd() *cobra.Command {
	cmder := &ReplayCommander{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			cmder.cfg, cmder.dir, err = stack.LoadConfig(cmd, cmder.configDir, flagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			cmder.logger = logger.NewLogger(cmder.debug)
			defer cmder.logger.Sync()

			st, err := stack.LoadState(cmd.Context(), cmder.cfg, cmder.dir, stack.Source{
				LogFile:    cmder.logFile,
				Checkpoint: cmder.checkpoint,
			}, cmder.logger)
			if err != nil {
				return err
			}
			return cmder.print(st)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageTarget, &cmder.storageTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageToken, &cmder.storageToken)

	cmd.Flags().StringVar(&cmder.logFile, "log", "", "Read the mutation log from a JSONL file")
	cmd.Flags().StringVar(&cmder.checkpoint, "from-checkpoint", "", "Replay onto this checkpoint")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the rebuilt state as JSON")

	return cmd
}

func (c *ReplayCommander) print(st *state.State) error {
	if c.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprint(c.out, Summary(st))
	return nil
}

// Summary renders the counts, blockers and gate of st for a terminal.
func Summary(st *state.State) string {
	var (
		b        strings.Builder
		archived int
		batches  int
	)
	for _, n := range st.Raw {
		if n.Archived() {
			archived++
		}
	}
	if last, ok := st.LastEntry(); ok {
		batches = last.Batch
	}

	row := func(key, value string) {
		fmt.Fprintf(&b, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-15s", key)), value)
	}

	b.WriteString("\n")
	row("Entries", fmt.Sprintf("%d in %d batches", len(st.History), batches))
	row("Nodes", fmt.Sprintf("%d (%d archived)", len(st.Raw), archived))
	row("Unknowns", list(st.Unknowns))
	row("Assumptions", list(st.Assumptions))
	row("Contradictions", fmt.Sprintf("%d unresolved clusters", len(engine.Contradictions(st))))
	b.WriteString("\n")

	for _, kind := range state.Kinds {
		fmt.Fprintf(&b, "  %s\n", cliui.GateLine(string(kind), engine.CanExecute(kind, st)))
	}
	b.WriteString("\n")

	return b.String()
}

func list(ids []string) string {
	if len(ids) == 0 {
		return cliui.DimStyle.Render("none")
	}
	return strings.Join(ids, ", ")
}
