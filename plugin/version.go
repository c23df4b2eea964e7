package plugin

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a {major, minor, patch} triple. Unlike full semver it carries
// no pre-release or build metadata: the spec only needs the three numbers
// for the compatibility predicate below.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// DefaultAPIVersion is the host API level assumed when a manifest omits
// api-version.
var DefaultAPIVersion = Version{Major: 0, Minor: 18, Patch: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses "M.m.p" or "M.m" (patch defaults to 0).
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// IsCompatibleWith reports whether host (the receiver) can host a plugin
// built against the given api-version: same major, and host minor is at
// least the plugin's. Patch is ignored.
func (host Version) IsCompatibleWith(plugin Version) bool {
	return host.Major == plugin.Major && host.Minor >= plugin.Minor
}
