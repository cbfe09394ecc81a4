// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/inspect"
)

// disksCmd lists candidate installation targets.
var disksCmd = &cobra.Command{
	Use:   "disks",
	Short: "List block devices and their partitions",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisksCmd()
	},
}

func init() {
	rootCmd.AddCommand(disksCmd)
}

func runDisksCmd() error {
	devices, err := inspect.BlockDevices()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "NAME\tSIZE\tTYPE\tFSTYPE")

	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, humanize.Bytes(d.Size), d.Type, d.FSType)
	}

	return w.Flush()
}
