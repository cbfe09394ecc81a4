// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blkdev defines the block-device manipulation service consumed by the
// partition planner.
//
// All offsets and lengths at this level are device-native sectors. The service
// materializes one in-memory view of a partition table per Open/Fresh/Clobber
// call; changes are staged via AddPartition/DeletePartition/SetBootFlag and
// applied atomically by Commit.
package blkdev

import "errors"

var (
	// ErrMissingPartitionTable indicates the device carries no partition table.
	ErrMissingPartitionTable = errors.New("no partition table exists on device")

	// ErrPartitionNotFound indicates the path does not resolve to an existing partition.
	ErrPartitionNotFound = errors.New("partition not found")
)

// GPT partition type GUIDs.
const (
	// EFISystemPartition marks the EFI system partition (and makes it bootable).
	EFISystemPartition = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"

	// LinuxFilesystemData marks a generic Linux data partition.
	LinuxFilesystemData = "0FC63DAF-8483-4772-8E79-3D69D8477DE4"
)

// Device describes a physical block device.
type Device struct {
	Path       string
	SectorSize uint64
	Length     uint64 // length in sectors
}

// SizeBytes returns the total device size in bytes.
func (d *Device) SizeBytes() uint64 {
	return d.Length * d.SectorSize
}

// Partition describes a single partition table entry.
type Partition struct {
	Path     string
	Number   int
	Label    string
	Type     string
	Start    uint64 // sectors
	Length   uint64 // sectors
	Bootable bool
}

// End returns the first sector past the partition.
func (p *Partition) End() uint64 {
	return p.Start + p.Length
}

// Geometry is a requested partition placement in sectors.
type Geometry struct {
	Start  uint64
	Length uint64
}

// End returns the first sector past the geometry.
func (g Geometry) End() uint64 {
	return g.Start + g.Length
}

// Constraint is the alignment tolerance the service may apply when physically
// aligning a requested geometry: acceptable ranges for the start and end
// boundaries plus bounds on the total size.
type Constraint struct {
	StartRange Geometry
	EndRange   Geometry
	MinSize    uint64 // sectors
	MaxSize    uint64 // sectors
}

// FreeSpaceRegion is a contiguous unallocated span on an existing table.
type FreeSpaceRegion struct {
	Start  uint64 // sectors
	Length uint64 // sectors
}

// End returns the first sector past the region.
func (r FreeSpaceRegion) End() uint64 {
	return r.Start + r.Length
}

// PartitionOptions are settings for a partition to be created.
type PartitionOptions struct {
	Label string
	Type  string
}

// PartitionOption is a setter for PartitionOptions.
type PartitionOption func(*PartitionOptions)

// WithLabel sets the GPT partition name.
func WithLabel(label string) PartitionOption {
	return func(o *PartitionOptions) {
		o.Label = label
	}
}

// WithPartitionType sets the GPT partition type GUID.
func WithPartitionType(guid string) PartitionOption {
	return func(o *PartitionOptions) {
		o.Type = guid
	}
}

// Service provides access to block devices and their partition tables.
type Service interface {
	// GetDevice queries the geometry of the block device at path.
	GetDevice(path string) (*Device, error)

	// OpenTable opens the existing partition table on the device.
	//
	// Returns ErrMissingPartitionTable if the device has none.
	OpenTable(dev *Device) (Table, error)

	// FreshTable writes a new empty GPT to the device, which must not
	// already have a partition table.
	FreshTable(dev *Device) (Table, error)

	// Clobber destroys any existing partition table and replaces it with a
	// new empty GPT.
	Clobber(dev *Device) (Table, error)
}

// Table is one in-memory view of a partition table.
type Table interface {
	// Device returns the backing device.
	Device() *Device

	// Partitions lists current entries ordered by start sector.
	Partitions() []*Partition

	// PartitionByPath resolves a partition device path to its entry.
	//
	// Returns ErrPartitionNotFound if no entry matches.
	PartitionByPath(path string) (*Partition, error)

	// FreeSpaceRegions lists contiguous unallocated spans, unordered.
	FreeSpaceRegions() []FreeSpaceRegion

	// AddPartition stages a new partition. The service may nudge the
	// boundaries for physical alignment within the constraint.
	AddPartition(geom Geometry, constraint Constraint, setters ...PartitionOption) (*Partition, error)

	// DeletePartition stages removal of an entry.
	DeletePartition(p *Partition) error

	// SetBootFlag stages marking the partition bootable.
	SetBootFlag(p *Partition) error

	// Commit applies all staged changes; on error the on-disk table is
	// left in its pre-call state.
	Commit() error

	// Close releases the device handle without applying staged changes.
	Close() error
}
