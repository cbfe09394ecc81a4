// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package planner

import "strings"

type homeKind int

const (
	homeNone homeKind = iota
	homeMake
	homeExisting
)

// HomePolicy is the home-partition placement policy: omit the home partition,
// create one on the destination disk, or reuse an existing partition path.
type HomePolicy struct {
	kind homeKind
	path string
}

// HomeNone omits the home partition.
func HomeNone() HomePolicy {
	return HomePolicy{kind: homeNone}
}

// HomeMake creates a home partition on the destination disk.
func HomeMake() HomePolicy {
	return HomePolicy{kind: homeMake}
}

// HomeExisting reuses the existing partition at path as home.
func HomeExisting(path string) HomePolicy {
	return HomePolicy{kind: homeExisting, path: path}
}

// ParseHomePolicy maps the wizard's home value: empty, "NULL" and "none" mean
// no home partition, "MAKE" requests one, anything else is an existing
// partition path.
func ParseHomePolicy(s string) HomePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none":
		return HomeNone()
	case "make":
		return HomeMake()
	default:
		return HomeExisting(strings.TrimSpace(s))
	}
}

// Path returns the existing partition path, if any.
func (h HomePolicy) Path() string {
	return h.path
}

func (h HomePolicy) String() string {
	switch h.kind {
	case homeMake:
		return "MAKE"
	case homeExisting:
		return h.path
	default:
		return "none"
	}
}
