// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Boundary is a partition edge, either an absolute megabyte offset or a
// percentage of the total device length. Percentages are resolved into
// megabytes exactly once, before any geometry math.
type Boundary struct {
	value   uint64
	percent bool
}

// AbsoluteMB returns a boundary at a fixed megabyte offset.
func AbsoluteMB(mb uint64) Boundary {
	return Boundary{value: mb}
}

// Percent returns a boundary at a whole percentage of the device length.
func Percent(pct uint64) Boundary {
	return Boundary{value: pct, percent: true}
}

// ParseBoundary parses "201" as an absolute megabyte offset and "40%" as a
// percentage of the device length.
func ParseBoundary(s string) (Boundary, error) {
	s = strings.TrimSpace(s)

	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseUint(strings.TrimSuffix(s, "%"), 10, 64)
		if err != nil {
			return Boundary{}, fmt.Errorf("malformed percentage %q: %w", s, err)
		}

		if pct > 100 {
			return Boundary{}, fmt.Errorf("malformed percentage %q: over 100%%", s)
		}

		return Percent(pct), nil
	}

	mb, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Boundary{}, fmt.Errorf("malformed boundary %q: %w", s, err)
	}

	return AbsoluteMB(mb), nil
}

// Resolve returns the boundary as absolute megabytes on a device of deviceMB.
func (b Boundary) Resolve(deviceMB uint64) uint64 {
	if b.percent {
		return deviceMB * b.value / 100
	}

	return b.value
}

func (b Boundary) String() string {
	if b.percent {
		return fmt.Sprintf("%d%%", b.value)
	}

	return strconv.FormatUint(b.value, 10)
}

// UnmarshalJSON accepts either a bare number (absolute megabytes) or a string
// ("40%" or "201").
func (b *Boundary) UnmarshalJSON(data []byte) error {
	var raw any

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*b = AbsoluteMB(uint64(v))

		return nil
	case string:
		parsed, err := ParseBoundary(v)
		if err != nil {
			return err
		}

		*b = parsed

		return nil
	default:
		return fmt.Errorf("boundary must be a number or a string, got %T", raw)
	}
}

// MarshalJSON implements json.Marshaler.
func (b Boundary) MarshalJSON() ([]byte, error) {
	if b.percent {
		return json.Marshal(b.String())
	}

	return json.Marshal(b.value)
}
