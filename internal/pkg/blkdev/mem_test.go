// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkdev_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
)

func testDevice(path string) blkdev.Device {
	return blkdev.Device{
		Path:       path,
		SectorSize: 512,
		Length:     125000000, // 64 GB
	}
}

func TestMemServiceGetDevice(t *testing.T) {
	svc := blkdev.NewMemService()
	svc.AddDevice(testDevice("/dev/sda"))

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, uint64(64000000000), dev.SizeBytes())

	_, err = svc.GetDevice("/dev/sdz")
	assert.Error(t, err)
}

func TestMemServiceOpenTable(t *testing.T) {
	svc := blkdev.NewMemService()
	svc.AddDevice(testDevice("/dev/sda"))

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	_, err = svc.OpenTable(dev)
	assert.ErrorIs(t, err, blkdev.ErrMissingPartitionTable)

	_, err = svc.FreshTable(dev)
	require.NoError(t, err)

	_, err = svc.OpenTable(dev)
	assert.NoError(t, err)
}

func TestMemTableCommit(t *testing.T) {
	svc := blkdev.NewMemService()
	md := svc.AddDevice(testDevice("/dev/sda"))

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	table, err := svc.FreshTable(dev)
	require.NoError(t, err)

	part, err := table.AddPartition(
		blkdev.Geometry{Start: 2048, Length: 390625},
		blkdev.Constraint{},
		blkdev.WithLabel("EFI"),
		blkdev.WithPartitionType(blkdev.EFISystemPartition))
	require.NoError(t, err)

	// nothing lands on the device before Commit
	assert.Empty(t, part.Path)
	assert.Empty(t, md.Partitions())

	root, err := table.AddPartition(
		blkdev.Geometry{Start: 392578, Length: 1000000},
		blkdev.Constraint{},
		blkdev.WithLabel("ROOT"))
	require.NoError(t, err)

	require.NoError(t, table.SetBootFlag(root))
	assert.False(t, root.Bootable)

	require.NoError(t, table.Commit())

	assert.Equal(t, "/dev/sda1", part.Path)
	assert.Equal(t, 1, part.Number)
	assert.Equal(t, "/dev/sda2", root.Path)
	assert.True(t, root.Bootable)

	parts := md.Partitions()
	require.Len(t, parts, 2)
	assert.Equal(t, blkdev.EFISystemPartition, parts[0].Type)
	assert.Equal(t, blkdev.LinuxFilesystemData, parts[1].Type)
}

func TestMemTableAddPartitionErrors(t *testing.T) {
	svc := blkdev.NewMemService()
	md := svc.AddDevice(testDevice("/dev/sda"))
	md.AddExistingPartition("HOME", 1000000, 1000000)

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	table, err := svc.OpenTable(dev)
	require.NoError(t, err)

	for _, tt := range []struct {
		name       string
		geom       blkdev.Geometry
		constraint blkdev.Constraint
	}{
		{
			name: "zero length",
			geom: blkdev.Geometry{Start: 2048},
		},
		{
			name: "past device end",
			geom: blkdev.Geometry{Start: 124000000, Length: 2000000},
		},
		{
			name: "overlaps existing",
			geom: blkdev.Geometry{Start: 1500000, Length: 1000000},
		},
		{
			name:       "below size constraint",
			geom:       blkdev.Geometry{Start: 2048, Length: 100},
			constraint: blkdev.Constraint{MinSize: 1000},
		},
		{
			name:       "above size constraint",
			geom:       blkdev.Geometry{Start: 2048, Length: 10000},
			constraint: blkdev.Constraint{MaxSize: 1000},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.AddPartition(tt.geom, tt.constraint)
			assert.Error(t, err)
		})
	}
}

func TestMemTableStagedOverlap(t *testing.T) {
	svc := blkdev.NewMemService()
	svc.AddDevice(testDevice("/dev/sda"))

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	table, err := svc.FreshTable(dev)
	require.NoError(t, err)

	_, err = table.AddPartition(blkdev.Geometry{Start: 2048, Length: 1000000}, blkdev.Constraint{})
	require.NoError(t, err)

	// staged partitions count for overlap checks too
	_, err = table.AddPartition(blkdev.Geometry{Start: 500000, Length: 1000000}, blkdev.Constraint{})
	assert.Error(t, err)
}

func TestMemTableDelete(t *testing.T) {
	svc := blkdev.NewMemService()
	md := svc.AddDevice(testDevice("/dev/sda"))
	md.AddExistingPartition("ROOT", 2048, 1000000)
	md.AddExistingPartition("HOME", 2000000, 1000000)

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	table, err := svc.OpenTable(dev)
	require.NoError(t, err)

	part, err := table.PartitionByPath("/dev/sda1")
	require.NoError(t, err)

	require.NoError(t, table.DeletePartition(part))

	// still present until Commit
	assert.Len(t, md.Partitions(), 2)

	require.NoError(t, table.Commit())

	parts := md.Partitions()
	require.Len(t, parts, 1)
	assert.Equal(t, "HOME", parts[0].Label)

	_, err = table.PartitionByPath("/dev/sda1")
	assert.ErrorIs(t, err, blkdev.ErrPartitionNotFound)
}

func TestMemTableFreeSpaceRegions(t *testing.T) {
	svc := blkdev.NewMemService()
	md := svc.AddDevice(testDevice("/dev/sda"))

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	// an empty table is one big region between the GPT structures
	table, err := svc.FreshTable(dev)
	require.NoError(t, err)

	regions := table.FreeSpaceRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(2048), regions[0].Start)
	assert.Equal(t, uint64(125000000-33), regions[0].End())

	// a partition in the middle splits it in two
	md.AddExistingPartition("HOME", 40000000, 20000000)

	regions = table.FreeSpaceRegions()
	require.Len(t, regions, 2)
	assert.Equal(t, uint64(2048), regions[0].Start)
	assert.Equal(t, uint64(40000000), regions[0].End())
	assert.Equal(t, uint64(60000000), regions[1].Start)
	assert.Equal(t, uint64(125000000-33), regions[1].End())
}

func TestMemServiceClobber(t *testing.T) {
	svc := blkdev.NewMemService()
	md := svc.AddDevice(testDevice("/dev/sda"))
	md.AddExistingPartition("HOME", 2048, 1000000)

	dev, err := svc.GetDevice("/dev/sda")
	require.NoError(t, err)

	table, err := svc.Clobber(dev)
	require.NoError(t, err)

	assert.Empty(t, md.Partitions())
	assert.True(t, md.HasTable)

	require.NoError(t, table.Close())
}

func TestPartitionNaming(t *testing.T) {
	svc := blkdev.NewMemService()

	for _, tt := range []struct {
		disk     string
		expected string
	}{
		{disk: "/dev/sda", expected: "/dev/sda1"},
		{disk: "/dev/nvme0n1", expected: "/dev/nvme0n1p1"},
		{disk: "/dev/mmcblk0", expected: "/dev/mmcblk0p1"},
	} {
		md := svc.AddDevice(testDevice(tt.disk))
		p := md.AddExistingPartition("ROOT", 2048, 1000)

		assert.Equal(t, tt.expected, p.Path)
	}
}
