// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package inspect queries live block-device topology and derives the size
// requirements used by the partition planner.
package inspect

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/prometheus/procfs"
	"github.com/siderolabs/gen/xslices"
	"github.com/siderolabs/go-cmd/pkg/cmd"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/devname"
	"github.com/drauger-os-development/auto-partitioner/pkg/sizeutil"
)

// PartitionSize resolves the partition's backing device from its path and
// returns the partition size in bytes.
//
// Returns blkdev.ErrMissingPartitionTable if the backing device has no table
// and blkdev.ErrPartitionNotFound if the path does not resolve to an existing
// partition.
func PartitionSize(svc blkdev.Service, partPath string) (uint64, error) {
	disk, err := devname.Disk(partPath)
	if err != nil {
		return 0, err
	}

	dev, err := svc.GetDevice(disk)
	if err != nil {
		return 0, err
	}

	table, err := svc.OpenTable(dev)
	if err != nil {
		return 0, err
	}

	defer table.Close() //nolint:errcheck

	part, err := table.PartitionByPath(partPath)
	if err != nil {
		return 0, err
	}

	return part.Length * dev.SectorSize, nil
}

// SwapAllowance returns the ideal swap size in bytes for a system with mem
// bytes of physical memory.
//
// The sub-linear growth gives small-memory systems a proportionally larger
// swap margin than large-memory ones.
func SwapAllowance(mem uint64) uint64 {
	const gib = 1 << 30

	return uint64(math.Round(float64(mem) + math.Sqrt(float64(mem)/gib)*gib))
}

// MinimumRootSize returns the minimum acceptable root partition size in bytes.
//
// When swap is true the ideal swap allowance is factored in, computed from
// ramBytes, or from the live system's physical memory when ramBytes is zero.
// minRootSizeMB is the configured fixed floor in megabytes.
func MinimumRootSize(minRootSizeMB uint64, swap bool, ramBytes uint64) (uint64, error) {
	var swapAmount uint64

	if swap {
		mem := ramBytes

		if mem == 0 {
			var err error

			if mem, err = TotalPhysicalMemory(); err != nil {
				return 0, err
			}
		}

		swapAmount = SwapAllowance(mem)
	}

	return swapAmount + sizeutil.MBToBytes(minRootSizeMB), nil
}

// TotalPhysicalMemory returns the physical memory size in bytes.
func TotalPhysicalMemory() (uint64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("error opening procfs: %w", err)
	}

	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("error reading meminfo: %w", err)
	}

	if mi.MemTotal == nil {
		return 0, fmt.Errorf("MemTotal missing from meminfo")
	}

	return *mi.MemTotal * 1024, nil
}

// BlockDevice is one entry of the block-device topology.
type BlockDevice struct {
	Name   string `json:"name"`
	Size   uint64 `json:"size"`
	Type   string `json:"type"`
	FSType string `json:"fstype"`
}

// BlockDevices queries the live block-device topology, excluding loop devices.
func BlockDevices() ([]BlockDevice, error) {
	out, err := cmd.Run("lsblk", "--json", "--paths", "--bytes", "--output", "name,size,type,fstype")
	if err != nil {
		return nil, fmt.Errorf("error running lsblk: %w", err)
	}

	return ParseBlockDevices([]byte(out))
}

// ParseBlockDevices decodes lsblk --json output, excluding loop devices.
func ParseBlockDevices(data []byte) ([]BlockDevice, error) {
	var topology struct {
		BlockDevices []BlockDevice `json:"blockdevices"`
	}

	if err := json.Unmarshal(data, &topology); err != nil {
		return nil, fmt.Errorf("error decoding lsblk output: %w", err)
	}

	return xslices.Filter(topology.BlockDevices, func(d BlockDevice) bool {
		return d.Type != "loop"
	}), nil
}
