// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package planner decides the disk layout for an installation: which
// partitions to create or reuse, where their boundaries fall, what filesystem
// each gets, and which partition carries the boot flag.
package planner

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/siderolabs/go-pointer"
	"github.com/siderolabs/go-retry/retry"
	"go.uber.org/zap"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/blkdev"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/devname"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/geometry"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/inspect"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/makefs"
	"github.com/drauger-os-development/auto-partitioner/internal/pkg/raid"
	"github.com/drauger-os-development/auto-partitioner/pkg/config"
	"github.com/drauger-os-development/auto-partitioner/pkg/sizeutil"
)

// SmallDiskLimitGB is the device size below which the layout degrades to a
// single full-span root partition regardless of the home policy.
const SmallDiskLimitGB = 32

// largeDiskRootShare is the fraction of the device the root partition gets on
// devices at or above the configured large-disk threshold.
const largeDiskRootShare = 0.35

// Request is one planning run.
type Request struct {
	// Disk is the destination block device path.
	Disk string

	// EFI is set when the system booted in UEFI mode.
	EFI bool

	// Home is the home-partition placement policy.
	Home HomePolicy

	// RAID, when requested, backs the home target with a btrfs array.
	RAID raid.Spec

	// Force skips the existing-data check on the first RAID build
	// attempt instead of reserving it for the retry.
	Force bool

	// RAMBytes overrides the detected physical memory when sizing the
	// root partition; zero means detect.
	RAMBytes uint64
}

// Layout is the role to partition-path mapping produced by a planning run.
// Root is always set; EFI is set iff the system booted in UEFI mode; Home is
// the created, reused, or RAID-backed path, if any.
type Layout struct {
	EFI  *string `json:"EFI"`
	Root string  `json:"ROOT"`
	Home *string `json:"HOME"`

	// Requests is the ordered sequence of partition requests that was
	// applied to the destination disk.
	Requests []geometry.Request `json:"-"`
}

// Planner is the partition planning decision tree.
type Planner struct {
	svc    blkdev.Service
	maker  makefs.FileMaker
	raid   *raid.Builder
	cfg    *config.Config
	logger *zap.Logger
}

// NewPlanner builds a Planner on top of the manipulation and formatting
// services.
func NewPlanner(svc blkdev.Service, maker makefs.FileMaker, cfg *config.Config, logger *zap.Logger) *Planner {
	return &Planner{
		svc:    svc,
		maker:  maker,
		raid:   raid.NewBuilder(maker, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Plan partitions the destination disk for installation and returns the
// resulting layout.
func (p *Planner) Plan(req Request) (*Layout, error) {
	s, err := classify(req)
	if err != nil {
		return nil, err
	}

	dev, err := p.svc.GetDevice(req.Disk)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With(zap.String("disk", req.Disk), zap.Stringer("scenario", s))

	logger.Info("planning disk layout",
		zap.String("size", humanize.Bytes(dev.SizeBytes())),
		zap.Bool("efi", req.EFI),
		zap.Stringer("home", req.Home))

	switch s {
	case scenarioRAIDHome:
		return p.planRAIDHome(dev, req, logger)
	case scenarioFreshDisk:
		return p.planFreshDisk(dev, req, logger)
	case scenarioHomeElsewhere:
		return p.planHomeElsewhere(dev, req, logger)
	case scenarioHomeOnTarget:
		return p.planHomeOnTarget(dev, req, logger)
	default:
		return nil, fmt.Errorf("unhandled scenario %q", s)
	}
}

// planRAIDHome clobbers the destination and builds the requested array as the
// home target. A failed build is retried once with force; a second failure
// degrades the plan to no home partition rather than aborting the run.
func (p *Planner) planRAIDHome(dev *blkdev.Device, req Request, logger *zap.Logger) (*Layout, error) {
	// validation must complete before anything destructive happens
	if err := raid.Validate(req.RAID); err != nil {
		return nil, err
	}

	table, err := p.svc.Clobber(dev)
	if err != nil {
		return nil, err
	}

	defer table.Close() //nolint:errcheck

	logger.Info("creating RAID array", zap.Stringer("type", req.RAID.Type))

	ok, err := p.raid.Build(req.RAID, req.Force)
	if err != nil {
		return nil, err
	}

	if !ok && !req.Force {
		logger.Warn("initial RAID array creation failed, forcing")

		if ok, err = p.raid.Build(req.RAID, true); err != nil {
			return nil, err
		}
	}

	var home *string

	if ok {
		home = pointer.To(req.RAID.Members[0])
	} else {
		logger.Warn("forced RAID array creation failed, falling back to no home partition")
	}

	return p.layoutFresh(table, req, false, home, logger)
}

// planFreshDisk clobbers the destination and lays it out from scratch.
func (p *Planner) planFreshDisk(dev *blkdev.Device, req Request, logger *zap.Logger) (*Layout, error) {
	table, err := p.svc.Clobber(dev)
	if err != nil {
		return nil, err
	}

	defer table.Close() //nolint:errcheck

	return p.layoutFresh(table, req, req.Home.kind == homeMake, nil, logger)
}

//nolint:gocyclo
func (p *Planner) layoutFresh(table blkdev.Table, req Request, makeHome bool, home *string, logger *zap.Logger) (*Layout, error) {
	dev := table.Device()

	var reqs []geometry.Request

	// small disks always get the degenerate single-root layout, even when a
	// home partition was asked for
	small := dev.SizeBytes() <= sizeutil.GBToBytes(SmallDiskLimitGB)

	if small || !makeHome {
		reqs = p.fullSpan(dev, req.EFI)
	} else {
		rootEndMB, err := p.rootEndMB(dev, req.RAMBytes)
		if err != nil {
			return nil, err
		}

		if req.EFI {
			reqs = append(reqs,
				geometry.PlanEFI(p.cfg.EFI.StartMB, p.cfg.EFI.EndMB),
				geometry.PlanRoot(dev, p.cfg.Root.Start, geometry.AbsoluteMB(rootEndMB), p.cfg.Root.Filesystem))
		} else {
			root := geometry.PlanRoot(dev, geometry.Percent(0), geometry.AbsoluteMB(rootEndMB), p.cfg.Root.Filesystem)
			root.Boot = true

			reqs = append(reqs, root)
		}

		reqs = append(reqs, geometry.PlanHome(dev, geometry.AbsoluteMB(rootEndMB), p.cfg.Home.End, p.cfg.Home.Filesystem))
	}

	parts, err := p.apply(table, reqs, logger)
	if err != nil {
		return nil, err
	}

	return buildLayout(reqs, parts, home), nil
}

// planHomeElsewhere clobbers the destination and reuses the externally
// supplied home path verbatim.
func (p *Planner) planHomeElsewhere(dev *blkdev.Device, req Request, logger *zap.Logger) (*Layout, error) {
	table, err := p.svc.Clobber(dev)
	if err != nil {
		return nil, err
	}

	defer table.Close() //nolint:errcheck

	reqs := p.fullSpan(dev, req.EFI)

	parts, err := p.apply(table, reqs, logger)
	if err != nil {
		return nil, err
	}

	return buildLayout(reqs, parts, pointer.To(req.Home.path)), nil
}

// planHomeOnTarget must not disturb the existing home partition: new EFI/root
// partitions go into a free-space region of the existing table.
func (p *Planner) planHomeOnTarget(dev *blkdev.Device, req Request, logger *zap.Logger) (*Layout, error) {
	logger.Info("home partition exists on the destination, not deleting partitions")

	table, err := p.svc.OpenTable(dev)
	if errors.Is(err, blkdev.ErrMissingPartitionTable) {
		// recoverable: a home path on a table-less disk cannot actually
		// hold data, so start a fresh table
		logger.Warn("no partition table exists, making a new one")

		table, err = p.svc.FreshTable(dev)
	}

	if err != nil {
		return nil, err
	}

	defer table.Close() //nolint:errcheck

	efiReq, rootReq, err := geometry.FindUsable(table.FreeSpaceRegions(), dev.SectorSize, req.EFI, p.cfg.Root.Filesystem)
	if err != nil {
		return nil, fmt.Errorf("cannot place new partitions next to the existing home partition on %q: %w", req.Disk, err)
	}

	var reqs []geometry.Request

	if efiReq != nil {
		reqs = append(reqs, *efiReq)
	}

	reqs = append(reqs, *rootReq)

	parts, err := p.apply(table, reqs, logger)
	if err != nil {
		return nil, err
	}

	return buildLayout(reqs, parts, pointer.To(req.Home.path)), nil
}

// fullSpan is the EFI-plus-root (or lone bootable root) layout covering the
// whole device.
func (p *Planner) fullSpan(dev *blkdev.Device, efi bool) []geometry.Request {
	if efi {
		return []geometry.Request{
			geometry.PlanEFI(p.cfg.EFI.StartMB, p.cfg.EFI.EndMB),
			geometry.PlanRoot(dev, p.cfg.Root.Start, geometry.Percent(100), p.cfg.Root.Filesystem),
		}
	}

	root := geometry.PlanRoot(dev, geometry.Percent(0), geometry.Percent(100), p.cfg.Root.Filesystem)
	root.Boot = true

	return []geometry.Request{root}
}

// rootEndMB sizes the root partition for the split root/home layout: a fixed
// share of large devices, the computed minimum for everything else.
func (p *Planner) rootEndMB(dev *blkdev.Device, ramBytes uint64) (uint64, error) {
	sizeBytes := dev.SizeBytes()

	if sizeBytes >= sizeutil.GBToBytes(p.cfg.LargeDiskGB) {
		return uint64(math.Round(float64(sizeBytes) * largeDiskRootShare / (1000 * 1000))), nil
	}

	minRoot, err := inspect.MinimumRootSize(p.cfg.MinRootSizeMB, true, ramBytes)
	if err != nil {
		return 0, err
	}

	return sizeutil.BytesToMB(minRoot), nil
}

// apply stages the partition requests, commits the table once, and then
// formats each created partition.
func (p *Planner) apply(table blkdev.Table, reqs []geometry.Request, logger *zap.Logger) ([]*blkdev.Partition, error) {
	dev := table.Device()

	parts := make([]*blkdev.Partition, 0, len(reqs))

	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return nil, err
		}

		opts := []blkdev.PartitionOption{blkdev.WithLabel(r.Role.String())}

		if r.Role == geometry.RoleEFI {
			opts = append(opts, blkdev.WithPartitionType(blkdev.EFISystemPartition))
		}

		logger.Info("adding partition",
			zap.Stringer("role", r.Role),
			zap.Uint64("start_mb", r.StartMB),
			zap.Uint64("end_mb", r.EndMB),
			zap.String("size", humanize.Bytes(sizeutil.MBToBytes(r.SizeMB()))))

		part, err := table.AddPartition(r.Geometry(dev.SectorSize), r.Constraint(dev.SectorSize), opts...)
		if err != nil {
			return nil, fmt.Errorf("error adding %s partition: %w", r.Role, err)
		}

		if r.Boot {
			if err = table.SetBootFlag(part); err != nil {
				return nil, err
			}
		}

		parts = append(parts, part)
	}

	if err := table.Commit(); err != nil {
		return nil, fmt.Errorf("error committing partition table on %q: %w", dev.Path, err)
	}

	for i, r := range reqs {
		p.format(parts[i], r, logger)
	}

	return parts, nil
}

// format creates the filesystem for a freshly committed partition. Formatting
// is best-effort: the captured tool output is surfaced for diagnostics and a
// failure does not undo the partition.
func (p *Planner) format(part *blkdev.Partition, r geometry.Request, logger *zap.Logger) {
	var (
		out  string
		ferr error
	)

	err := retry.Constant(15*time.Second, retry.WithUnits(100*time.Millisecond)).Retry(func() error {
		if r.Filesystem == geometry.FilesystemFAT32 {
			out, ferr = p.maker.FAT32(part.Path)
		} else {
			out, ferr = p.maker.Format(part.Path, r.Filesystem)
		}

		if ferr != nil && strings.Contains(ferr.Error(), "No such file or directory") {
			// partition device not visible immediately after partitioning
			return retry.ExpectedError(ferr)
		}

		return nil
	})

	if err == nil {
		err = ferr
	}

	if err != nil {
		logger.Warn("formatting failed",
			zap.String("partition", part.Path),
			zap.String("filesystem", r.Filesystem),
			zap.String("output", out),
			zap.Error(err))

		return
	}

	logger.Info("formatted partition",
		zap.String("partition", part.Path),
		zap.String("filesystem", r.Filesystem))
}

// DeletePartition removes the partition at partPath from its backing device.
func (p *Planner) DeletePartition(partPath string) error {
	disk, err := devname.Disk(partPath)
	if err != nil {
		return err
	}

	dev, err := p.svc.GetDevice(disk)
	if err != nil {
		return err
	}

	table, err := p.svc.OpenTable(dev)
	if err != nil {
		return err
	}

	defer table.Close() //nolint:errcheck

	part, err := table.PartitionByPath(partPath)
	if err != nil {
		return err
	}

	if err = table.DeletePartition(part); err != nil {
		return err
	}

	return table.Commit()
}

func buildLayout(reqs []geometry.Request, parts []*blkdev.Partition, home *string) *Layout {
	l := &Layout{Requests: reqs}

	for i, r := range reqs {
		switch r.Role {
		case geometry.RoleEFI:
			l.EFI = pointer.To(parts[i].Path)
		case geometry.RoleRoot:
			l.Root = parts[i].Path
		case geometry.RoleHome:
			l.Home = pointer.To(parts[i].Path)
		}
	}

	if home != nil {
		l.Home = home
	}

	return l
}
