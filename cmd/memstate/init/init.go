// Package initcmder provides the init command for initializing a local
// .memstate directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memstate/pkg/cliui"
	"github.com/papercomputeco/memstate/pkg/config"
	"github.com/papercomputeco/memstate/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .memstate/ directory in the current working directory.

Creates a local .memstate/ directory that takes precedence over the
default ~/.memstate/ directory for configuration and file, badger and
sqlite storage. With --preset a config.toml tuned for a deployment is
written as well:
  local     file storage, in-memory vectors, Ollama embeddings
  sqlite    sqlite storage and sqlite-vec vectors
  cluster   postgres storage, qdrant vectors, Kafka batch events

Examples:
  memstate init
  memstate init --preset sqlite`

const initShortDesc string = "Initialize a local .memstate/ directory"

type initCommander struct {
	preset string
	force  bool
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Write a preset config.toml (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .memstate directory: %w", err)
		}
		fmt.Fprintf(c.out, "Initialized .memstate directory: %s\n", dir)
	}

	if c.preset == "" {
		return nil
	}
	return c.writePreset(dir)
}

func (c *initCommander) writePreset(dir string) error {
	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil && !c.force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", cfger.GetTarget())
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(c.preset),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}
