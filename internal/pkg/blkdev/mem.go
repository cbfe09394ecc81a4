// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkdev

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// MemService is an in-memory manipulation service. It backs the planner's
// dry-run mode and the tests: table views stage changes and Commit applies
// them atomically, mirroring the on-disk service contract.
type MemService struct {
	devices map[string]*MemDevice
}

// MemDevice is a synthetic block device held by a MemService.
type MemDevice struct {
	Device

	HasTable bool

	parts []*Partition
}

// NewMemService returns an empty in-memory service.
func NewMemService() *MemService {
	return &MemService{devices: map[string]*MemDevice{}}
}

// AddDevice registers a synthetic device and returns it for fixture setup.
func (s *MemService) AddDevice(dev Device) *MemDevice {
	md := &MemDevice{Device: dev}

	s.devices[dev.Path] = md

	return md
}

// CreateTable marks the device as carrying an (empty) partition table.
func (d *MemDevice) CreateTable() *MemDevice {
	d.HasTable = true

	return d
}

// AddExistingPartition places a committed partition on the device, as if it
// predated the planning run.
func (d *MemDevice) AddExistingPartition(label string, start, length uint64) *Partition {
	d.HasTable = true

	number := d.nextNumber()

	p := &Partition{
		Path:   partPath(d.Path, number),
		Number: number,
		Label:  label,
		Type:   LinuxFilesystemData,
		Start:  start,
		Length: length,
	}

	d.parts = append(d.parts, p)

	return p
}

// Partitions returns the committed partitions ordered by start sector.
func (d *MemDevice) Partitions() []*Partition {
	parts := make([]*Partition, len(d.parts))
	copy(parts, d.parts)

	sort.Slice(parts, func(i, j int) bool { return parts[i].Start < parts[j].Start })

	return parts
}

func (d *MemDevice) nextNumber() int {
	used := map[int]struct{}{}

	for _, p := range d.parts {
		used[p.Number] = struct{}{}
	}

	// lowest free slot, the way partitioning tools number partitions
	for n := 1; ; n++ {
		if _, ok := used[n]; !ok {
			return n
		}
	}
}

func partPath(disk string, number int) string {
	base := path.Base(disk)

	if strings.HasPrefix(base, "nvme") || strings.HasPrefix(base, "mmcblk") {
		return fmt.Sprintf("%sp%d", disk, number)
	}

	return fmt.Sprintf("%s%d", disk, number)
}

// GetDevice implements Service.
func (s *MemService) GetDevice(devicePath string) (*Device, error) {
	md, ok := s.devices[devicePath]
	if !ok {
		return nil, fmt.Errorf("no such block device: %q", devicePath)
	}

	dev := md.Device

	return &dev, nil
}

// OpenTable implements Service.
func (s *MemService) OpenTable(dev *Device) (Table, error) {
	md, ok := s.devices[dev.Path]
	if !ok {
		return nil, fmt.Errorf("no such block device: %q", dev.Path)
	}

	if !md.HasTable {
		return nil, ErrMissingPartitionTable
	}

	return &memTable{dev: md}, nil
}

// FreshTable implements Service.
func (s *MemService) FreshTable(dev *Device) (Table, error) {
	md, ok := s.devices[dev.Path]
	if !ok {
		return nil, fmt.Errorf("no such block device: %q", dev.Path)
	}

	md.HasTable = true
	md.parts = nil

	return &memTable{dev: md}, nil
}

// Clobber implements Service.
func (s *MemService) Clobber(dev *Device) (Table, error) {
	return s.FreshTable(dev)
}

type memTable struct {
	dev *MemDevice

	adds      []*Partition
	deletes   []*Partition
	bootFlags []*Partition
}

func (t *memTable) Device() *Device {
	dev := t.dev.Device

	return &dev
}

func (t *memTable) Partitions() []*Partition {
	return t.dev.Partitions()
}

func (t *memTable) PartitionByPath(partitionPath string) (*Partition, error) {
	for _, p := range t.dev.parts {
		if p.Path == partitionPath {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, partitionPath)
}

func (t *memTable) FreeSpaceRegions() []FreeSpaceRegion {
	var regions []FreeSpaceRegion

	cursor := uint64(firstUsableSector)
	limit := t.dev.Length - gptReservedSectors

	for _, part := range t.dev.Partitions() {
		if part.Start > cursor {
			regions = append(regions, FreeSpaceRegion{Start: cursor, Length: part.Start - cursor})
		}

		if part.End() > cursor {
			cursor = part.End()
		}
	}

	if limit > cursor {
		regions = append(regions, FreeSpaceRegion{Start: cursor, Length: limit - cursor})
	}

	return regions
}

//nolint:gocyclo
func (t *memTable) AddPartition(geom Geometry, constraint Constraint, setters ...PartitionOption) (*Partition, error) {
	if geom.Length == 0 {
		return nil, fmt.Errorf("zero-length partition requested at sector %d on %q", geom.Start, t.dev.Path)
	}

	if constraint.MinSize > 0 && geom.Length < constraint.MinSize {
		return nil, fmt.Errorf("requested geometry of %d sectors is below the constraint minimum of %d sectors", geom.Length, constraint.MinSize)
	}

	if constraint.MaxSize > 0 && geom.Length > constraint.MaxSize {
		return nil, fmt.Errorf("requested geometry of %d sectors exceeds the constraint maximum of %d sectors", geom.Length, constraint.MaxSize)
	}

	if geom.End() > t.dev.Length {
		return nil, fmt.Errorf("requested geometry [%d, %d) extends past the end of %q (%d sectors)",
			geom.Start, geom.End(), t.dev.Path, t.dev.Length)
	}

	for _, p := range append(t.dev.Partitions(), t.adds...) {
		if geom.Start < p.End() && p.Start < geom.End() {
			return nil, fmt.Errorf("requested geometry [%d, %d) overlaps partition %d [%d, %d) on %q",
				geom.Start, geom.End(), p.Number, p.Start, p.End(), t.dev.Path)
		}
	}

	var opts PartitionOptions

	for _, s := range setters {
		s(&opts)
	}

	if opts.Type == "" {
		opts.Type = LinuxFilesystemData
	}

	part := &Partition{
		Label:  opts.Label,
		Type:   opts.Type,
		Start:  geom.Start,
		Length: geom.Length,
	}

	t.adds = append(t.adds, part)

	return part, nil
}

func (t *memTable) DeletePartition(p *Partition) error {
	t.deletes = append(t.deletes, p)

	return nil
}

func (t *memTable) SetBootFlag(p *Partition) error {
	t.bootFlags = append(t.bootFlags, p)

	return nil
}

func (t *memTable) Commit() error {
	parts := make([]*Partition, 0, len(t.dev.parts)+len(t.adds))

	for _, p := range t.dev.parts {
		deleted := false

		for _, d := range t.deletes {
			if d == p {
				deleted = true

				break
			}
		}

		if !deleted {
			parts = append(parts, p)
		}
	}

	t.dev.parts = parts

	for _, p := range t.adds {
		p.Number = t.dev.nextNumber()
		p.Path = partPath(t.dev.Path, p.Number)

		t.dev.parts = append(t.dev.parts, p)
	}

	for _, p := range t.bootFlags {
		p.Bootable = true
	}

	t.adds = nil
	t.deletes = nil
	t.bootFlags = nil

	return nil
}

func (t *memTable) Close() error {
	return nil
}
