// Package contextcmder provides the context command, which renders the
// bounded context view of a memory state.
package contextcmder

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/cmd/memstate/stack"
	"github.com/papercomputeco/memstate/pkg/cliui"
	"github.com/papercomputeco/memstate/pkg/config"
	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/logger"
)

type ContextCommander struct {
	configDir      string
	debug          bool
	logFile        string
	checkpoint     string
	includeHistory bool
	query          string
	topK           int

	budget          int
	historyDepth    int
	storageProvider string
	storageTarget   string
	storageToken    string
	vectorProvider  string
	vectorTarget    string
	embeddingProv   string
	embeddingTarget string
	embeddingModel  string
	embeddingDims   uint

	out    io.Writer
	cfg    *config.Config
	dir    string
	logger *zap.Logger
}

const contextLongDesc string = `Render the context view of a memory state.

The view lists blockers first, then assumptions, unknowns, facts, plans
and actions, each node on one line, cut to the character budget. Archived nodes
never appear. With --query and a configured vector store, nodes similar to
the query move to the front of each section.

Output is rendered as markdown when stdout is a terminal.

Examples:
  memstate context
  memstate context --budget 2000 --history
  memstate context --log run.jsonl --query "database migration"`

const contextShortDesc string = "Render the context view of a state"

var flagKeys = []string{
	config.FlagBudget,
	config.FlagHistoryDepth,
	config.FlagStorageProvider,
	config.FlagStorageTarget,
	config.FlagStorageToken,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}

func NewContextCmd() *cobra.Command {
	cmder := &ContextCommander{}

	cmd := &cobra.Command{
		Use:   "context",
		Short: contextShortDesc,
		Long:  contextLongDesc,
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
			return cmder.run(cmd)
		},
	}

	config.AddIntFlag(cmd, config.Flags, config.FlagBudget, &cmder.budget)
	config.AddIntFlag(cmd, config.Flags, config.FlagHistoryDepth, &cmder.historyDepth)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageTarget, &cmder.storageTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageToken, &cmder.storageToken)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)

	cmd.Flags().StringVar(&cmder.logFile, "log", "", "Read the mutation log from a JSONL file")
	cmd.Flags().StringVar(&cmder.checkpoint, "from-checkpoint", "", "Replay onto this checkpoint")
	cmd.Flags().BoolVar(&cmder.includeHistory, "history", false, "Append the most recent log entries")
	cmd.Flags().StringVarP(&cmder.query, "query", "q", "", "Rank nodes by similarity to this text")
	cmd.Flags().IntVar(&cmder.topK, "topk", contextbuilder.DefaultIndexTopK, "Number of similar nodes to rank")

	return cmd
}

func (c *ContextCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := stack.LoadState(ctx, c.cfg, c.dir, stack.Source{
		LogFile:    c.logFile,
		Checkpoint: c.checkpoint,
	}, c.logger)
	if err != nil {
		return err
	}

	opts := stack.ContextOptions(c.cfg)
	if cmd.Flags().Changed("history") {
		opts.IncludeHistory = c.includeHistory
	}

	if c.query != "" {
		index, err := stack.OpenIndex(ctx, c.cfg, c.dir, c.logger)
		if err != nil {
			return err
		}
		if index == nil {
			return errors.New("--query requires a vector store; set vector_store.provider")
		}
		defer index.Close()

		if err := index.Sync(ctx, st, nil); err != nil {
			return fmt.Errorf("indexing state: %w", err)
		}
		opts.Index = index
		opts.Query = c.query
		opts.TopK = c.topK
	}

	view, err := contextbuilder.Build(ctx, st, opts)
	if err != nil {
		return err
	}
	return cliui.WriteMarkdown(c.out, view)
}
