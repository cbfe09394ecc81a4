// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sizeutil provides conversions between the units used in disk layout
// planning: bytes, gigabytes (10^9 bytes), megabytes (10^6 bytes) and
// device-native sectors.
package sizeutil

// GBToBytes converts gigabytes to bytes.
func GBToBytes(gb uint64) uint64 {
	return gb * 1000 * 1000 * 1000
}

// BytesToGB converts bytes to gigabytes.
func BytesToGB(b uint64) float64 {
	return float64(b) / (1000 * 1000 * 1000)
}

// BytesToMB converts bytes to megabytes, truncating to the nearest megabyte.
func BytesToMB(b uint64) uint64 {
	return b / (1000 * 1000)
}

// MBToBytes converts megabytes to bytes.
func MBToBytes(mb uint64) uint64 {
	return mb * 1000 * 1000
}

// SectorsToMB converts a sector count to megabytes for device sectorSize.
func SectorsToMB(sectors, sectorSize uint64) uint64 {
	return sectors * sectorSize / (1000 * 1000)
}

// MBToSectors converts megabytes to a sector count for device sectorSize.
func MBToSectors(mb, sectorSize uint64) uint64 {
	return mb * 1000 * 1000 / sectorSize
}
