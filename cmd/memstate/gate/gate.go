// Package gatecmder provides the gate command, which reports whether each
// kind of work may execute against a memory state.
package gatecmder

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
	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/logger"
	"github.com/papercomputeco/memstate/pkg/state"
)

// ClosedError is returned when a single kind was asked for and its gate is
// closed, so scripts can branch on the exit status.
type ClosedError struct {
	Kind state.Kind
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("gate closed for %s", e.Kind)
}

type GateCommander struct {
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

const gateLongDesc string = `Report which kinds of work may execute.

A gate is closed while any unknown remains or any node is dirty. The
action gate is also closed while an assumption is not yet validated.

With a kind argument only that gate is checked, and the command fails
when it is closed.

Examples:
  memstate gate
  memstate gate action && run-the-action
  memstate gate --log run.jsonl --json`

const gateShortDesc string = "Report which kinds may execute"

var flagKeys = []string{
	config.FlagStorageProvider,
	config.FlagStorageTarget,
	config.FlagStorageToken,
}

func NewGateCmd() *cobra.Command {
	cmder := &GateCommander{}

	kinds := make([]string, len(state.Kinds))
	for i, k := range state.Kinds {
		kinds[i] = string(k)
	}

	cmd := &cobra.Command{
		Use:       "gate [kind]",
		Short:     gateShortDesc,
		Long:      gateLongDesc,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: kinds,
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
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if len(args) == 1 {
				return cmder.runKind(st, state.Kind(args[0]))
			}
			return cmder.runAll(st)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageTarget, &cmder.storageTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageToken, &cmder.storageToken)

	cmd.Flags().StringVar(&cmder.logFile, "log", "", "Read the mutation log from a JSONL file")
	cmd.Flags().StringVar(&cmder.checkpoint, "from-checkpoint", "", "Replay onto this checkpoint")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print gates as a JSON object")

	return cmd
}

func (c *GateCommander) runKind(st *state.State, kind state.Kind) error {
	ok := engine.CanExecute(kind, st)
	if err := c.write(map[state.Kind]bool{kind: ok}, st); err != nil {
		return err
	}
	if !ok {
		return &ClosedError{Kind: kind}
	}
	return nil
}

func (c *GateCommander) runAll(st *state.State) error {
	gates := make(map[state.Kind]bool, len(state.Kinds))
	for _, kind := range state.Kinds {
		gates[kind] = engine.CanExecute(kind, st)
	}
	return c.write(gates, st)
}

func (c *GateCommander) write(gates map[state.Kind]bool, st *state.State) error {
	if c.json {
		return json.NewEncoder(c.out).Encode(gates)
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, kind := range state.Kinds {
		ok, asked := gates[kind]
		if !asked {
			continue
		}
		fmt.Fprintf(&b, "  %s\n", cliui.GateLine(string(kind), ok))
	}

	if blockers := Blockers(st); len(blockers) > 0 {
		fmt.Fprintf(&b, "\n  %s %s\n", cliui.KeyStyle.Render("Blocked by:"), strings.Join(blockers, ", "))
	}
	b.WriteString("\n")

	_, err := io.WriteString(c.out, b.String())
	return err
}

// Blockers lists the ids that close gates: open unknowns, dirty nodes and
// assumptions that are not validated. Archived nodes are skipped.
func Blockers(st *state.State) []string {
	var ids []string
	for _, id := range st.IDs() {
		n := st.Node(id)
		if !n.Archived() && contextbuilder.IsBlocker(n) {
			ids = append(ids, id)
		}
	}
	return ids
}
