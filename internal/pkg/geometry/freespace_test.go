// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/geometry"
)

func regionMB(startMB, sizeMB uint64) blkdev.FreeSpaceRegion {
	return blkdev.FreeSpaceRegion{
		Start:  sectors(startMB),
		Length: sectors(sizeMB),
	}
}

func TestFindUsable(t *testing.T) {
	// regions of 50, 180 and 256 MB: the 256 MB one is the smallest that
	// qualifies, regardless of input order
	regions := []blkdev.FreeSpaceRegion{
		regionMB(40000, 256),
		regionMB(100, 50),
		regionMB(20000, 180),
	}

	efi, root, err := geometry.FindUsable(regions, 512, true, "ext4")
	require.NoError(t, err)

	require.NotNil(t, efi)
	assert.Equal(t, uint64(40000), efi.StartMB)
	assert.Equal(t, uint64(40200), efi.EndMB)
	assert.True(t, efi.Boot)

	assert.Equal(t, uint64(40200), root.StartMB)
	assert.Equal(t, uint64(40256), root.EndMB)
	assert.Equal(t, "ext4", root.Filesystem)
	assert.False(t, root.Boot)
}

func TestFindUsableNoEFI(t *testing.T) {
	regions := []blkdev.FreeSpaceRegion{regionMB(40000, 256)}

	efi, root, err := geometry.FindUsable(regions, 512, false, "ext4")
	require.NoError(t, err)

	assert.Nil(t, efi)
	assert.Equal(t, uint64(40000), root.StartMB)
	assert.Equal(t, uint64(40256), root.EndMB)
	assert.True(t, root.Boot)
}

func TestFindUsableNoSpace(t *testing.T) {
	for _, regions := range [][]blkdev.FreeSpaceRegion{
		nil,
		{regionMB(100, 50), regionMB(20000, 199)},
	} {
		_, _, err := geometry.FindUsable(regions, 512, true, "ext4")
		assert.ErrorIs(t, err, geometry.ErrNoUsableFreeSpace)
	}
}

func TestFindUsableDoesNotMutate(t *testing.T) {
	regions := []blkdev.FreeSpaceRegion{
		regionMB(40000, 256),
		regionMB(100, 50),
	}

	_, _, err := geometry.FindUsable(regions, 512, true, "ext4")
	require.NoError(t, err)

	assert.Equal(t, regionMB(40000, 256), regions[0])
}
