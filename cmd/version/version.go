// Package versioncmder
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memstate/pkg/utils"
)

type VersionCommander struct {
	json bool
	out  io.Writer
}

// Info is the build metadata printed by the version command.
type Info struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"buildtime"`
}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print build metadata as JSON")

	return cmd
}

func (c *VersionCommander) run() error {
	info := Info{Version: utils.Version, Sha: utils.Sha, Buildtime: utils.Buildtime}
	if c.json {
		return json.NewEncoder(c.out).Encode(info)
	}

	_, err := fmt.Fprintf(c.out, "Version: %s\nSha: %s\nBuilt at: %s\n", info.Version, info.Sha, info.Buildtime)
	return err
}
