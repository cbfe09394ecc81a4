// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkdev

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"unsafe"

	"github.com/siderolabs/go-blockdevice/blockdevice"
	"github.com/siderolabs/go-blockdevice/blockdevice/partition/gpt"
	"github.com/siderolabs/go-blockdevice/blockdevice/util"
	"golang.org/x/sys/unix"
)

// GPT reserves 33 sectors at the end of the device for the backup header, and
// the usable area starts at 1 MiB for physical alignment.
const (
	gptReservedSectors = 33
	firstUsableSector  = 2048
)

type service struct{}

// NewService returns the go-blockdevice backed manipulation service.
func NewService() Service {
	return service{}
}

func (service) GetDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, os.ModeDevice)
	if err != nil {
		return nil, fmt.Errorf("error opening block device %q: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	var size uint64

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return nil, fmt.Errorf("BLKGETSIZE64 failed on %q: %w", path, errno)
	}

	var sectorSize int

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKSSZGET, uintptr(unsafe.Pointer(&sectorSize))); errno != 0 {
		return nil, fmt.Errorf("BLKSSZGET failed on %q: %w", path, errno)
	}

	return &Device{
		Path:       path,
		SectorSize: uint64(sectorSize),
		Length:     size / uint64(sectorSize),
	}, nil
}

func (service) OpenTable(dev *Device) (Table, error) {
	bd, err := blockdevice.Open(dev.Path, blockdevice.WithExclusiveLock(true))
	if err != nil {
		return nil, err
	}

	pt, err := bd.PartitionTable()
	if err != nil {
		bd.Close() //nolint:errcheck

		if errors.Is(err, blockdevice.ErrMissingPartitionTable) {
			return nil, ErrMissingPartitionTable
		}

		return nil, err
	}

	return &gptTable{dev: dev, bd: bd, pt: pt}, nil
}

func (s service) FreshTable(dev *Device) (Table, error) {
	bd, err := blockdevice.Open(dev.Path, blockdevice.WithExclusiveLock(true))
	if err != nil {
		return nil, err
	}

	return freshTable(dev, bd)
}

func (s service) Clobber(dev *Device) (Table, error) {
	bd, err := blockdevice.Open(dev.Path, blockdevice.WithExclusiveLock(true))
	if err != nil {
		return nil, err
	}

	if _, err = bd.PartitionTable(); err == nil {
		// deletes the existing partition table
		if err = bd.Reset(); err != nil {
			bd.Close() //nolint:errcheck

			return nil, fmt.Errorf("error resetting partition table on %q: %w", dev.Path, err)
		}
	} else if !errors.Is(err, blockdevice.ErrMissingPartitionTable) {
		bd.Close() //nolint:errcheck

		return nil, err
	}

	return freshTable(dev, bd)
}

// freshTable writes a new empty GPT and reopens the device so the kernel view
// matches, the same dance the partition table creation always needs.
func freshTable(dev *Device, bd *blockdevice.BlockDevice) (Table, error) {
	pt, err := gpt.New(bd.Device())
	if err != nil {
		bd.Close() //nolint:errcheck

		return nil, err
	}

	if err = pt.Write(); err != nil {
		bd.Close() //nolint:errcheck

		return nil, err
	}

	if err = bd.Close(); err != nil {
		return nil, err
	}

	if bd, err = blockdevice.Open(dev.Path, blockdevice.WithExclusiveLock(true)); err != nil {
		return nil, err
	}

	if pt, err = bd.PartitionTable(); err != nil {
		bd.Close() //nolint:errcheck

		return nil, err
	}

	return &gptTable{dev: dev, bd: bd, pt: pt}, nil
}

type stagedAdd struct {
	geom   Geometry
	opts   PartitionOptions
	result *Partition
}

type gptTable struct {
	dev *Device
	bd  *blockdevice.BlockDevice
	pt  *gpt.GPT

	adds    []*stagedAdd
	deletes []*Partition
}

func (t *gptTable) Device() *Device {
	return t.dev
}

func (t *gptTable) Partitions() []*Partition {
	items := t.pt.Partitions().Items()

	parts := make([]*Partition, 0, len(items))

	for _, part := range items {
		// deleted entries leave nil slots in the GPT entry array
		if part == nil {
			continue
		}

		path, err := util.PartPath(t.dev.Path, int(part.Number))
		if err != nil {
			path = ""
		}

		parts = append(parts, &Partition{
			Path:   path,
			Number: int(part.Number),
			Label:  part.Name,
			Start:  part.FirstLBA,
			Length: part.LastLBA - part.FirstLBA + 1,
		})
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].Start < parts[j].Start })

	return parts
}

func (t *gptTable) PartitionByPath(path string) (*Partition, error) {
	for _, part := range t.Partitions() {
		if part.Path == path {
			return part, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrPartitionNotFound, path)
}

func (t *gptTable) FreeSpaceRegions() []FreeSpaceRegion {
	var regions []FreeSpaceRegion

	cursor := uint64(firstUsableSector)
	limit := t.dev.Length - gptReservedSectors

	for _, part := range t.Partitions() {
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

func (t *gptTable) AddPartition(geom Geometry, constraint Constraint, setters ...PartitionOption) (*Partition, error) {
	if geom.Length == 0 {
		return nil, fmt.Errorf("zero-length partition requested at sector %d on %q", geom.Start, t.dev.Path)
	}

	if constraint.MinSize > 0 && geom.Length < constraint.MinSize {
		return nil, fmt.Errorf("requested geometry of %d sectors is below the constraint minimum of %d sectors", geom.Length, constraint.MinSize)
	}

	if constraint.MaxSize > 0 && geom.Length > constraint.MaxSize {
		return nil, fmt.Errorf("requested geometry of %d sectors exceeds the constraint maximum of %d sectors", geom.Length, constraint.MaxSize)
	}

	var opts PartitionOptions

	for _, s := range setters {
		s(&opts)
	}

	if opts.Type == "" {
		opts.Type = LinuxFilesystemData
	}

	staged := &stagedAdd{
		geom: geom,
		opts: opts,
		result: &Partition{
			Label:  opts.Label,
			Type:   opts.Type,
			Start:  geom.Start,
			Length: geom.Length,
		},
	}

	t.adds = append(t.adds, staged)

	return staged.result, nil
}

func (t *gptTable) DeletePartition(p *Partition) error {
	t.deletes = append(t.deletes, p)

	return nil
}

// SetBootFlag marks a partition staged in this table view as bootable. The
// flag is carried either by the EFI system partition type or by the legacy
// BIOS bootable attribute, both of which are written at partition creation.
func (t *gptTable) SetBootFlag(p *Partition) error {
	for _, staged := range t.adds {
		if staged.result == p {
			p.Bootable = true

			return nil
		}
	}

	return fmt.Errorf("cannot set boot flag on %q: partition is not staged on this table", p.Path)
}

// insertIndex picks the GPT entry slot for a partition starting at the given
// LBA. Entry order is not guaranteed to match physical order, so the slot is
// derived from the entries' own first LBAs: the new partition goes right
// before the first live entry that starts beyond it.
func insertIndex(items []*gpt.Partition, start uint64) int {
	for i, part := range items {
		if part == nil {
			continue
		}

		if part.FirstLBA > start {
			return i
		}
	}

	return len(items)
}

//nolint:gocyclo
func (t *gptTable) Commit() error {
	for _, p := range t.deletes {
		var target *gpt.Partition

		for _, part := range t.pt.Partitions().Items() {
			if part != nil && int(part.Number) == p.Number {
				target = part

				break
			}
		}

		if target == nil {
			return fmt.Errorf("%w: partition %d on %q", ErrPartitionNotFound, p.Number, t.dev.Path)
		}

		if err := t.pt.Delete(target); err != nil {
			return fmt.Errorf("error deleting partition %q: %w", p.Path, err)
		}
	}

	for _, staged := range t.adds {
		pos := insertIndex(t.pt.Partitions().Items(), staged.geom.Start)

		opts := []gpt.PartitionOption{
			gpt.WithPartitionType(staged.opts.Type),
			gpt.WithOffset(staged.geom.Start * t.dev.SectorSize),
		}

		if staged.opts.Label != "" {
			opts = append(opts, gpt.WithPartitionName(staged.opts.Label))
		}

		if staged.result.Bootable && staged.opts.Type != EFISystemPartition {
			opts = append(opts, gpt.WithLegacyBIOSBootableAttribute(true))
		}

		part, err := t.pt.InsertAt(pos, staged.geom.Length*t.dev.SectorSize, opts...)
		if err != nil {
			return fmt.Errorf("error inserting partition on %q: %w", t.dev.Path, err)
		}

		path, err := util.PartPath(t.dev.Path, int(part.Number))
		if err != nil {
			return err
		}

		staged.result.Path = path
		staged.result.Number = int(part.Number)
		staged.result.Start = part.FirstLBA
		staged.result.Length = part.LastLBA - part.FirstLBA + 1
	}

	if err := t.pt.Write(); err != nil {
		return fmt.Errorf("error writing partition table on %q: %w", t.dev.Path, err)
	}

	t.adds = nil
	t.deletes = nil

	return nil
}

func (t *gptTable) Close() error {
	return t.bd.Close()
}
