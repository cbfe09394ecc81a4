// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package planner

import (
	"fmt"

	"github.com/drauger-os-development/auto-partitioner/internal/pkg/devname"
)

// scenario enumerates the terminal branches of the planning decision tree.
// Every request classifies into exactly one scenario before any disk is
// touched, so each branch is independently testable.
type scenario int

const (
	// scenarioRAIDHome: a valid RAID array is requested as the home
	// target; the destination disk is clobbered and the array built.
	scenarioRAIDHome scenario = iota

	// scenarioFreshDisk: no home partition exists anywhere (policy none or
	// MAKE); the destination disk is clobbered and laid out from scratch.
	scenarioFreshDisk

	// scenarioHomeElsewhere: an existing home partition lives on another
	// device; the destination is clobbered, the home path reused verbatim.
	scenarioHomeElsewhere

	// scenarioHomeOnTarget: the existing home partition lives on the
	// destination disk, which therefore must not be clobbered; new
	// partitions go into free space.
	scenarioHomeOnTarget
)

func (s scenario) String() string {
	switch s {
	case scenarioRAIDHome:
		return "raid-home"
	case scenarioFreshDisk:
		return "fresh-disk"
	case scenarioHomeElsewhere:
		return "home-elsewhere"
	case scenarioHomeOnTarget:
		return "home-on-target"
	default:
		return fmt.Sprintf("scenario(%d)", int(s))
	}
}

// classify picks the decision-tree branch for a request. Evaluation order
// matters: a RAID request wins over everything else.
func classify(req Request) (scenario, error) {
	if req.RAID.Requested() {
		return scenarioRAIDHome, nil
	}

	switch req.Home.kind {
	case homeNone, homeMake:
		return scenarioFreshDisk, nil
	case homeExisting:
		disk, err := devname.Disk(req.Home.path)
		if err != nil {
			return 0, fmt.Errorf("invalid home partition path: %w", err)
		}

		if disk == req.Disk {
			return scenarioHomeOnTarget, nil
		}

		return scenarioHomeElsewhere, nil
	default:
		return 0, fmt.Errorf("unknown home policy %q", req.Home)
	}
}
