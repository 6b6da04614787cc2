// Package watchcmder provides the watch command, which follows a JSONL
// mutation log and reports each new batch and the resulting gates.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/cmd/memstate/stack"
	"github.com/papercomputeco/memstate/pkg/cliui"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/logger"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage/file"
	storageutils "github.com/papercomputeco/memstate/pkg/storage/utils"
	"github.com/papercomputeco/memstate/pkg/utils"
)

const maxTouchedWidth = 60

type WatchCommander struct {
	configDir string
	debug     bool
	path      string

	out    io.Writer
	logger *zap.Logger
}

const watchLongDesc string = `Follow a JSONL mutation log.

Every batch appended to the log is replayed as it arrives, and the batch
number, the nodes it touched and the gate for each kind are printed.
Without an argument the log of the file storage in the .memstate/
directory is followed.

Examples:
  memstate watch
  memstate watch ./run/log.jsonl`

const watchShortDesc string = "Follow a JSONL mutation log"

func NewWatchCmd() *cobra.Command {
	cmder := &WatchCommander{}

	cmd := &cobra.Command{
		Use:   "watch [log.jsonl]",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			cmder.logger = logger.NewLogger(cmder.debug)
			defer cmder.logger.Sync()

			if len(args) == 1 {
				cmder.path = args[0]
			} else {
				cmder.path, err = cmder.defaultPath(cmd)
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = cmder.Watch(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	return cmd
}

func (c *WatchCommander) defaultPath(cmd *cobra.Command) (string, error) {
	cfg, dir, err := stack.LoadConfig(cmd, c.configDir, nil)
	if err != nil {
		return "", err
	}
	if cfg.Storage.Provider != storageutils.ProviderFile {
		return "", fmt.Errorf("storage provider %q has no log file; pass a path", cfg.Storage.Provider)
	}
	return filepath.Join(stack.StorageTarget(cfg.Storage, dir), file.LogFileName), nil
}

// NewWatcher returns a commander that follows path and writes to out.
func NewWatcher(path string, out io.Writer, logger *zap.Logger) *WatchCommander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchCommander{path: path, out: out, logger: logger}
}

// Watch follows the log until ctx is done. The log file may not exist yet;
// it is picked up when created.
func (c *WatchCommander) Watch(ctx context.Context) error {
	path := filepath.Clean(c.path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	f := &follower{
		path:   path,
		engine: engine.New(engine.Config{Logger: c.logger}),
		st:     state.New(),
		out:    c.out,
		logger: c.logger,
	}
	fmt.Fprintf(c.out, "\n  %s %s\n\n", cliui.KeyStyle.Render("Watching"), cliui.DimStyle.Render(path))
	f.refresh()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f.refresh()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher error: %w", err)
		}
	}
}

type follower struct {
	path   string
	engine *engine.Engine
	st     *state.State
	out    io.Writer
	logger *zap.Logger
}

// refresh replays whatever the log holds beyond the current state. A log
// shorter than the state was rewritten and is replayed from scratch. Read
// and replay failures are logged and retried on the next event, since a
// writer may be mid-line.
func (f *follower) refresh() {
	entries, err := stack.ReadLogFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Debug("log not readable yet", zap.Error(err))
		}
		return
	}

	history := state.Linearize(entries)
	base := f.st
	if state.SharedPrefix(history, base.History) < len(base.History) {
		fmt.Fprintf(f.out, "  %s\n\n", cliui.DimStyle.Render("log rewritten, replaying from the start"))
		base = state.New()
	}

	next, err := f.engine.Replay(history, base)
	if err != nil {
		f.logger.Warn("replaying log", zap.Error(err))
		return
	}

	added := next.History[len(base.History):]
	f.st = next
	if len(added) == 0 {
		return
	}

	for _, batch := range groupBatches(added) {
		fmt.Fprint(f.out, renderBatch(batch))
	}
	fmt.Fprint(f.out, renderGates(next))
}

func groupBatches(entries []state.Entry) [][]state.Entry {
	var out [][]state.Entry
	for i, en := range entries {
		if i == 0 || en.Batch != entries[i-1].Batch {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], en)
	}
	return out
}

func renderBatch(batch []state.Entry) string {
	touched := utils.Truncate(strings.Join(memory.TouchedIDs(batch), ", "), maxTouchedWidth)
	return fmt.Sprintf("  %s %s %s\n",
		cliui.KeyStyle.Render(fmt.Sprintf("batch %d", batch[0].Batch)),
		cliui.DimStyle.Render(fmt.Sprintf("%d mutations", len(batch))),
		touched,
	)
}

func renderGates(st *state.State) string {
	gates := make([]string, 0, len(state.Kinds))
	for _, kind := range state.Kinds {
		gates = append(gates, fmt.Sprintf("%s %s", cliui.GateMark(engine.CanExecute(kind, st)), kind))
	}
	return fmt.Sprintf("    %s\n\n", strings.Join(gates, "  "))
}
