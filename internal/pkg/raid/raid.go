// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package raid validates RAID array requests and drives btrfs array creation.
package raid

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/makefs"
)

// Type is a btrfs RAID profile.
type Type int

// Supported RAID types. TypeNone means no array is requested.
const (
	TypeNone   Type = -1
	TypeRAID0  Type = 0
	TypeRAID1  Type = 1
	TypeRAID5  Type = 5
	TypeRAID6  Type = 6
	TypeRAID10 Type = 10
)

func (t Type) String() string {
	if t == TypeNone {
		return "none"
	}

	return fmt.Sprintf("raid%d", int(t))
}

// ParseType parses a RAID type from its name ("raid0", "RAID10") or bare
// number ("0", "10"). Empty input, "none" and the wizard's "OEM" preset map
// to TypeNone.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "none", "oem":
		return TypeNone, nil
	case "raid0", "0":
		return TypeRAID0, nil
	case "raid1", "1":
		return TypeRAID1, nil
	case "raid5", "5":
		return TypeRAID5, nil
	case "raid6", "6":
		return TypeRAID6, nil
	case "raid10", "10":
		return TypeRAID10, nil
	default:
		return TypeNone, fmt.Errorf("%q is not a valid btrfs RAID type", s)
	}
}

// Validate checks the member-disk count against the type's requirements:
// RAID0/1 need at least 2 disks, RAID5 between 3 and 16, RAID6 and RAID10 at
// least 4.
func (t Type) Validate(members int) error {
	switch t {
	case TypeRAID0, TypeRAID1:
		if members < 2 {
			return fmt.Errorf("not enough disks for %s: have %d, need at least 2", t, members)
		}
	case TypeRAID5:
		if members < 3 || members > 16 {
			return fmt.Errorf("not enough/too many disks for %s: have %d, need 3 to 16", t, members)
		}
	case TypeRAID6, TypeRAID10:
		if members < 4 {
			return fmt.Errorf("not enough disks for %s: have %d, need at least 4", t, members)
		}
	case TypeNone:
		return fmt.Errorf("no RAID type requested")
	default:
		return fmt.Errorf("%d is not a valid btrfs RAID type", int(t))
	}

	return nil
}

// Spec is a requested array: the RAID type plus the ordered member disks.
type Spec struct {
	Type    Type
	Members []string
}

// Requested reports whether the spec asks for an array at all.
func (s Spec) Requested() bool {
	return s.Type != TypeNone
}

// FromSlots builds a Spec from the wizard's slot map. Slots "1" and "2" are
// designated: leaving either unset invalidates the whole request and the type
// resets to none rather than attempting an array with missing disks. Other
// unset slots are simply dropped.
func FromSlots(raidType Type, slots map[string]*string) Spec {
	keys := make([]string, 0, len(slots))

	for k := range slots {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	spec := Spec{Type: raidType}

	for _, k := range keys {
		v := slots[k]

		if v == nil {
			if k == "1" || k == "2" {
				return Spec{Type: TypeNone}
			}

			continue
		}

		spec.Members = append(spec.Members, *v)
	}

	return spec
}

// Validate checks a spec without touching any disk: the type must be valid
// for the member count and every member device must exist.
func Validate(spec Spec) error {
	if err := spec.Type.Validate(len(spec.Members)); err != nil {
		return err
	}

	for _, disk := range spec.Members {
		if _, err := os.Stat(disk); err != nil {
			return fmt.Errorf("RAID member device not found: %q: %w", disk, err)
		}
	}

	return nil
}

// Builder creates btrfs RAID arrays through the formatting service.
type Builder struct {
	maker  makefs.FileMaker
	logger *zap.Logger
}

// NewBuilder returns a Builder.
func NewBuilder(maker makefs.FileMaker, logger *zap.Logger) *Builder {
	return &Builder{maker: maker, logger: logger}
}

// Build validates the spec and requests array creation.
//
// Validation problems (invalid type, wrong member count, missing member
// device) are returned as errors before anything destructive happens. A
// creation attempt that fails returns (false, nil); the caller decides
// whether to retry with force or abandon the array.
func (b *Builder) Build(spec Spec, force bool) (bool, error) {
	if err := Validate(spec); err != nil {
		return false, err
	}

	// RAID0/5/6 keep the default metadata profile, the others mirror it
	metaProfile := ""

	switch spec.Type { //nolint:exhaustive
	case TypeRAID0, TypeRAID5, TypeRAID6:
	default:
		metaProfile = spec.Type.String()
	}

	out, err := b.maker.BtrfsRAID(spec.Members, spec.Type.String(), metaProfile, force)
	if err != nil {
		b.logger.Warn("RAID array creation failed",
			zap.Stringer("type", spec.Type),
			zap.Strings("members", spec.Members),
			zap.Bool("force", force),
			zap.String("output", out),
			zap.Error(err))

		return false, nil
	}

	b.logger.Info("created RAID array",
		zap.Stringer("type", spec.Type),
		zap.Strings("members", spec.Members))

	return true, nil
}
