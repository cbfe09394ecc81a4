// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/makefs"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/planner"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/raid"
	"github.com/drauger-os-development/auto-partitioner/pkg/config"
)

var planOptions = struct {
	Disk      string
	EFI       bool
	Home      string
	RAIDType  string
	RAIDDisks []string
	Force     bool
	DryRun    bool
}{}

// planCmd partitions the destination disk and prints the resulting layout.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Partition the destination disk and print the role to partition mapping",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlanCmd()
	},
}

func init() {
	planCmd.Flags().StringVar(&planOptions.Disk, "disk", "", "The path to the disk to install to")
	planCmd.Flags().BoolVar(&planOptions.EFI, "efi", false, "Plan an EFI system partition (UEFI boot)")
	planCmd.Flags().StringVar(&planOptions.Home, "home", "", "Home partition policy: empty or \"none\", \"MAKE\", or the path to an existing partition")
	planCmd.Flags().StringVar(&planOptions.RAIDType, "raid-type", "", "Back the home target with a btrfs RAID array (\"raid0\", \"raid1\", \"raid5\", \"raid6\", \"raid10\")")
	planCmd.Flags().StringArrayVar(&planOptions.RAIDDisks, "raid-disk", []string{}, "Member disk of the RAID array (repeatable)")
	planCmd.Flags().BoolVar(&planOptions.Force, "force", false, "Skip the existing-data check when creating the RAID array")
	planCmd.Flags().BoolVar(&planOptions.DryRun, "dry-run", false, "Plan against an in-memory copy of the disk without writing anything")

	planCmd.MarkFlagRequired("disk") //nolint:errcheck

	rootCmd.AddCommand(planCmd)
}

func runPlanCmd() error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(options.ConfigPath)
	if err != nil {
		return err
	}

	raidType, err := raid.ParseType(planOptions.RAIDType)
	if err != nil {
		return err
	}

	var (
		svc   blkdev.Service = blkdev.NewService()
		maker                = makefs.NewMaker()
	)

	if planOptions.DryRun {
		// mirror the real device into the in-memory service so the plan
		// is computed against its true size without touching it
		dev, err := svc.GetDevice(planOptions.Disk)
		if err != nil {
			return err
		}

		mem := blkdev.NewMemService()
		mem.AddDevice(*dev)

		svc, maker = mem, makefs.NewDryRun()
	}

	p := planner.NewPlanner(svc, maker, cfg, logger)

	layout, err := p.Plan(planner.Request{
		Disk:  planOptions.Disk,
		EFI:   planOptions.EFI,
		Home:  planner.ParseHomePolicy(planOptions.Home),
		RAID:  raid.Spec{Type: raidType, Members: planOptions.RAIDDisks},
		Force: planOptions.Force,
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}
