package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted integer triple "major.minor.patch" identifying a
// point in the data model's upgrade history. The zero value is Initial.
//
// Version is comparable and usable as a map key.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Initial is the distinguished minimum version: no patches applied yet.
// It is never a valid patch target.
var Initial = Version{}

// ParseVersion parses an "x.y.z" string. Each component must be a
// non-negative integer without signs or leading junk.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want x.y.z", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		// Atoi alone would accept a leading "+".
		if part == "" || part[0] < '0' || part[0] > '9' {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", s, part)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", s, part)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion is ParseVersion that panics on error. For tests and
// compile-time-constant versions in registered patches.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version as "x.y.z". Initial renders as "0.0.0".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsInitial reports whether v is the initial sentinel.
func (v Version) IsInitial() bool {
	return v == Initial
}

// Compare returns -1, 0 or 1 by component-wise ordering. Initial is
// the unique minimum. Used for display only; chain order comes from
// base→target connectivity.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return sign(v.Major - o.Major)
	}
	if v.Minor != o.Minor {
		return sign(v.Minor - o.Minor)
	}
	return sign(v.Patch - o.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler so versions round-trip
// through JSON manifests as "x.y.z" strings.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
