// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package makefs wraps the filesystem creation tools.
//
// Formatting is best-effort: mkfs tools vary in exit-code reliability, so
// every call returns whatever output was captured along with the error, and
// callers decide whether a failure is fatal.
package makefs

import (
	"errors"
	"strings"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// FileMaker is the filesystem-formatting service.
type FileMaker interface {
	// Format creates a filesystem of the given type on the device.
	Format(devname, fstype string) (string, error)

	// FAT32 creates a FAT32 filesystem on the device.
	FAT32(devname string) (string, error)

	// BtrfsRAID creates a multi-device btrfs filesystem with the given
	// data profile ("raid0", "raid1", ...) across the member disks.
	// metaProfile mirrors the metadata when non-empty. force bypasses the
	// existing-data check of mkfs.btrfs.
	BtrfsRAID(disks []string, dataProfile, metaProfile string, force bool) (string, error)
}

type maker struct{}

// NewMaker returns the mkfs-backed formatting service.
func NewMaker() FileMaker {
	return maker{}
}

func (maker) Format(devname, fstype string) (string, error) {
	if devname == "" {
		return "", errors.New("missing path to partition")
	}

	// the ext family spells the force flag differently
	force := "-f"

	if strings.HasPrefix(fstype, "ext") {
		force = "-F"
	}

	return cmd.Run("mkfs", "-t", fstype, force, devname)
}

func (maker) FAT32(devname string) (string, error) {
	if devname == "" {
		return "", errors.New("missing path to partition")
	}

	return cmd.Run("mkfs.fat", "-F", "32", devname)
}

func (maker) BtrfsRAID(disks []string, dataProfile, metaProfile string, force bool) (string, error) {
	if len(disks) == 0 {
		return "", errors.New("missing member disks")
	}

	args := []string{}

	if force {
		args = append(args, "-f")
	}

	args = append(args, "-d", dataProfile)

	if metaProfile != "" {
		args = append(args, "-m", metaProfile)
	}

	args = append(args, disks...)

	return cmd.Run("mkfs.btrfs", args...)
}

type dryRun struct{}

// NewDryRun returns a formatting service that reports success without
// touching any device.
func NewDryRun() FileMaker {
	return dryRun{}
}

func (dryRun) Format(string, string) (string, error) { return "", nil }

func (dryRun) FAT32(string) (string, error) { return "", nil }

func (dryRun) BtrfsRAID([]string, string, string, bool) (string, error) { return "", nil }
