// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package devname parses Linux partition device paths into the backing disk
// and the partition number, the inverse of util.PartPath.
//
// Two naming schemes are supported: NVMe/MMC style, where the partition number
// is separated from the namespace with a "p" ("/dev/nvme0n1p5"), and
// SATA/SCSI/virtio style, where the number follows the disk letter directly
// ("/dev/sda5").
package devname

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/siderolabs/go-blockdevice/blockdevice/util"
)

// Split returns the backing disk path and the partition number for a partition
// device path.
func Split(partPath string) (disk string, number int, err error) {
	partno, err := util.PartNo(partPath)
	if err != nil {
		return "", 0, fmt.Errorf("%q is not a partition device path: %w", partPath, err)
	}

	// a whole-disk path yields an empty or non-numeric partition number
	number, err = strconv.Atoi(partno)
	if err != nil {
		return "", 0, fmt.Errorf("%q is not a partition device path", partPath)
	}

	devname, err := util.DevnameFromPartname(partPath)
	if err != nil {
		return "", 0, fmt.Errorf("%q is not a partition device path: %w", partPath, err)
	}

	return filepath.Join("/dev", devname), number, nil
}

// Disk returns the backing disk path for a partition device path.
func Disk(partPath string) (string, error) {
	disk, _, err := Split(partPath)

	return disk, err
}
