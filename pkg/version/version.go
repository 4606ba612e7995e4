// Package version provides firmware version parsing and the capability
// manifest for known ACE models.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Library is the version of this library, reported by the CLI.
const Library = "1.0.0"

// Firmware is a parsed unit firmware version.
type Firmware struct {
	Major int
	Minor int
	Patch int
}

// ParseFirmware parses a firmware string as reported by get_info,
// e.g. "v1.2.3". The leading "v" and the patch component are optional.
func ParseFirmware(s string) (Firmware, error) {
	trimmed := strings.TrimPrefix(s, "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Firmware{}, fmt.Errorf("invalid firmware version %q", s)
	}

	var fw Firmware
	nums := []*int{&fw.Major, &fw.Minor, &fw.Patch}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Firmware{}, fmt.Errorf("invalid firmware version %q: bad component %q", s, part)
		}
		*nums[i] = n
	}
	return fw, nil
}

// String returns the version as "v<major>.<minor>.<patch>".
func (f Firmware) String() string {
	return fmt.Sprintf("v%d.%d.%d", f.Major, f.Minor, f.Patch)
}

// AtLeast reports whether f is the same as or newer than other.
func (f Firmware) AtLeast(other Firmware) bool {
	if f.Major != other.Major {
		return f.Major > other.Major
	}
	if f.Minor != other.Minor {
		return f.Minor > other.Minor
	}
	return f.Patch >= other.Patch
}
