// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry

import (
	"errors"
	"sort"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/pkg/sizeutil"
)

// MinRegionMB is both the smallest free-space region worth using and the size
// of the EFI partition carved from a chosen region.
const MinRegionMB = 200

// ErrNoUsableFreeSpace indicates no free-space region on the existing table
// is large enough to host new partitions.
var ErrNoUsableFreeSpace = errors.New("no usable free-space region of at least 200 MB")

// FindUsable scans the free-space regions of an existing table for room to
// place a new root partition, and an EFI partition in front of it when
// needEFI is set. Regions are scanned smallest-first; the first one of at
// least MinRegionMB wins.
//
// Returns ErrNoUsableFreeSpace when no region qualifies.
func FindUsable(regions []blkdev.FreeSpaceRegion, sectorSize uint64, needEFI bool, rootFilesystem string) (efi, root *Request, err error) {
	sorted := make([]blkdev.FreeSpaceRegion, len(regions))
	copy(sorted, regions)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Length < sorted[j].Length })

	for _, region := range sorted {
		if sizeutil.SectorsToMB(region.Length, sectorSize) < MinRegionMB {
			continue
		}

		startMB := sizeutil.SectorsToMB(region.Start, sectorSize)
		endMB := sizeutil.SectorsToMB(region.End(), sectorSize)

		if !needEFI {
			// root carries the boot flag when there is no EFI partition
			r := Request{Role: RoleRoot, StartMB: startMB, EndMB: endMB, Filesystem: rootFilesystem, Boot: true}

			return nil, &r, nil
		}

		e := PlanEFI(startMB, startMB+MinRegionMB)
		r := Request{Role: RoleRoot, StartMB: startMB + MinRegionMB, EndMB: endMB, Filesystem: rootFilesystem}

		return &e, &r, nil
	}

	return nil, nil, ErrNoUsableFreeSpace
}
