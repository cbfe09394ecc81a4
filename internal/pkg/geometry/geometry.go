// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package geometry computes partition boundaries in device-native sectors,
// together with the alignment tolerance windows passed to the block-device
// manipulation service.
package geometry

import (
	"fmt"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/pkg/sizeutil"
)

// Role of a planned partition.
type Role int

// Partition roles.
const (
	RoleEFI Role = iota
	RoleRoot
	RoleHome
)

func (r Role) String() string {
	switch r {
	case RoleEFI:
		return "EFI"
	case RoleRoot:
		return "ROOT"
	case RoleHome:
		return "HOME"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// FilesystemFAT32 is the filesystem identifier for EFI system partitions.
const FilesystemFAT32 = "fat32"

// Alignment tolerance windows, in megabytes. The manipulation service may
// nudge boundaries to physical alignment anywhere inside these windows.
const (
	startWindowMB = 20
	endWindowMB   = 40
	sizeTolMB     = 150

	efiWindowForwardMB = 10
	efiWindowBackMB    = 20
	efiMinShrinkMB     = 25
	efiMaxGrowMB       = 20
)

// Request is a planned partition: boundaries resolved to absolute megabytes,
// the target filesystem, and whether the partition must carry the boot flag.
type Request struct {
	Role       Role
	StartMB    uint64
	EndMB      uint64
	Filesystem string
	Boot       bool
}

// SizeMB returns the requested span in megabytes.
func (r Request) SizeMB() uint64 {
	return r.EndMB - r.StartMB
}

// Geometry returns the requested placement in sectors.
func (r Request) Geometry(sectorSize uint64) blkdev.Geometry {
	start := sizeutil.MBToSectors(r.StartMB, sectorSize)

	return blkdev.Geometry{
		Start:  start,
		Length: sizeutil.MBToSectors(r.EndMB, sectorSize) - start,
	}
}

// Constraint returns the alignment tolerance for the request: a search window
// around each boundary plus minimum and maximum acceptable total sizes, so
// the manipulation service can align to physical boundaries without violating
// the caller's intent.
func (r Request) Constraint(sectorSize uint64) blkdev.Constraint {
	toSectors := func(mb uint64) uint64 {
		return sizeutil.MBToSectors(mb, sectorSize)
	}

	span := r.SizeMB()

	if r.Role == RoleEFI {
		return blkdev.Constraint{
			StartRange: spanSectors(r.StartMB, r.StartMB+efiWindowForwardMB, sectorSize),
			EndRange:   spanSectors(clampMB(r.EndMB, efiWindowBackMB), r.EndMB+efiWindowForwardMB, sectorSize),
			MinSize:    toSectors(clampMB(span, efiMinShrinkMB)),
			MaxSize:    toSectors(span + efiMaxGrowMB),
		}
	}

	return blkdev.Constraint{
		StartRange: spanSectors(clampMB(r.StartMB, startWindowMB), r.StartMB+startWindowMB, sectorSize),
		EndRange:   spanSectors(clampMB(r.EndMB, endWindowMB), r.EndMB, sectorSize),
		MinSize:    toSectors(clampMB(span, sizeTolMB)),
		MaxSize:    toSectors(span + sizeTolMB),
	}
}

// Validate checks the request before it reaches the manipulation service.
func (r Request) Validate() error {
	if r.EndMB <= r.StartMB {
		return fmt.Errorf("%s partition end %d MB is not past its start %d MB", r.Role, r.EndMB, r.StartMB)
	}

	return nil
}

func spanSectors(startMB, endMB, sectorSize uint64) blkdev.Geometry {
	start := sizeutil.MBToSectors(startMB, sectorSize)

	return blkdev.Geometry{
		Start:  start,
		Length: sizeutil.MBToSectors(endMB, sectorSize) - start,
	}
}

// clampMB subtracts delta from mb, clamping at zero.
func clampMB(mb, delta uint64) uint64 {
	if mb < delta {
		return 0
	}

	return mb - delta
}

// PlanEFI plans the EFI system partition between fixed megabyte offsets.
func PlanEFI(startMB, endMB uint64) Request {
	return Request{
		Role:       RoleEFI,
		StartMB:    startMB,
		EndMB:      endMB,
		Filesystem: FilesystemFAT32,
		Boot:       true,
	}
}

// PlanRoot plans the root partition. Percentage boundaries are resolved
// against the device length before any geometry math.
func PlanRoot(dev *blkdev.Device, start, end Boundary, filesystem string) Request {
	deviceMB := sizeutil.SectorsToMB(dev.Length, dev.SectorSize)

	return Request{
		Role:       RoleRoot,
		StartMB:    start.Resolve(deviceMB),
		EndMB:      end.Resolve(deviceMB),
		Filesystem: filesystem,
	}
}

// PlanHome plans a home partition; it shares the boundary and tolerance
// computation with the root partition.
func PlanHome(dev *blkdev.Device, start, end Boundary, filesystem string) Request {
	req := PlanRoot(dev, start, end, filesystem)
	req.Role = RoleHome

	return req
}
