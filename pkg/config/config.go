// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config resolves the partitioning policy from the installer's
// settings file. The resolved Config is read-only for the rest of the run;
// any missing key falls back to a documented default.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/geometry"
)

// DefaultPath is the installer settings file location.
const DefaultPath = "/etc/system-installer/settings.json"

// PartitionPolicy is the configured placement for the root or home partition.
type PartitionPolicy struct {
	Start      geometry.Boundary `json:"START"`
	End        geometry.Boundary `json:"END"`
	Filesystem string            `json:"fs"`
}

// EFIPolicy is the configured placement for the EFI system partition, always
// in absolute megabytes.
type EFIPolicy struct {
	StartMB uint64 `json:"START"`
	EndMB   uint64 `json:"END"`
}

// Config is the resolved partitioning policy.
type Config struct {
	Root PartitionPolicy `json:"ROOT"`
	Home PartitionPolicy `json:"HOME"`
	EFI  EFIPolicy       `json:"EFI"`

	// MinRootSizeMB is the fixed floor added to the swap allowance when
	// computing the minimum root partition size.
	MinRootSizeMB uint64 `json:"min root size"`

	// LargeDiskGB is the threshold above which root gets a fixed
	// percentage of the device rather than the computed minimum.
	LargeDiskGB uint64 `json:"mdswh"`
}

// Default returns the built-in partitioning policy.
func Default() *Config {
	return &Config{
		Root: PartitionPolicy{
			Start:      geometry.AbsoluteMB(201),
			End:        geometry.Percent(40),
			Filesystem: "ext4",
		},
		Home: PartitionPolicy{
			Start:      geometry.Percent(40),
			End:        geometry.Percent(100),
			Filesystem: "ext4",
		},
		EFI: EFIPolicy{
			StartMB: 0,
			EndMB:   200,
		},
		MinRootSizeMB: 23000,
		LargeDiskGB:   128,
	}
}

// Load reads the settings file at path and merges its "partitioning" block
// over the defaults. A missing file resolves to pure defaults; a malformed
// file or boundary is a fatal configuration error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}

		return nil, fmt.Errorf("error reading settings %q: %w", path, err)
	}

	var settings struct {
		Partitioning *json.RawMessage `json:"partitioning"`
	}

	if err = json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("error decoding settings %q: %w", path, err)
	}

	cfg := Default()

	// the packager may have dropped the whole block
	if settings.Partitioning == nil {
		return cfg, nil
	}

	if err = json.Unmarshal(*settings.Partitioning, cfg); err != nil {
		return nil, fmt.Errorf("error decoding partitioning settings %q: %w", path, err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid partitioning settings %q: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the resolved policy for values no layout could satisfy.
func (c *Config) Validate() error {
	if c.Root.Filesystem == "" {
		return fmt.Errorf("root filesystem is not set")
	}

	if c.Home.Filesystem == "" {
		return fmt.Errorf("home filesystem is not set")
	}

	if c.EFI.EndMB <= c.EFI.StartMB {
		return fmt.Errorf("EFI end %d MB is not past its start %d MB", c.EFI.EndMB, c.EFI.StartMB)
	}

	if c.MinRootSizeMB == 0 {
		return fmt.Errorf("minimum root size is not set")
	}

	if c.LargeDiskGB == 0 {
		return fmt.Errorf("large-disk threshold is not set")
	}

	return nil
}
