package peer

import (
	"strconv"
	"strings"
)

// semver is the minimal "major.minor.patch" triple a Hello's version
// string must parse as. No third-party semver
// library appears anywhere in the example corpus's dependency surface, so
// this narrow parser stays on the standard library rather than pulling in
// an otherwise-unused dependency for three integers.
type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return semver{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return semver{}, false
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, true
}

// atLeast reports whether v >= min.
func (v semver) atLeast(min semver) bool {
	if v.major != min.major {
		return v.major > min.major
	}
	if v.minor != min.minor {
		return v.minor > min.minor
	}
	return v.patch >= min.patch
}
