// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/makefs"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/planner"
	"github.com/drauger-os-development/auto-partitioner/pkg/config"
)

// deleteCmd removes a single partition from its disk.
var deleteCmd = &cobra.Command{
	Use:   "delete <partition>",
	Short: "Delete the partition at the given path",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeleteCmd(args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDeleteCmd(partition string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(options.ConfigPath)
	if err != nil {
		return err
	}

	p := planner.NewPlanner(blkdev.NewService(), makefs.NewMaker(), cfg, logger)

	return p.DeletePartition(partition)
}
