package utils

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// AnyVersion is the requirement used when a query does not give one
const AnyVersion = "*"

// ParseVersion parses a full major.minor.patch version. Pre-release and
// build metadata are accepted but ignored by CoreVersion and CompareCore.
func ParseVersion(raw string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}

// ParseRequirement parses a version requirement such as "^1" or ">=1.2, <2".
// A comparator without an operator is a caret requirement, so "1.2" accepts
// 1.5.0. Use "=1.2.3" for an exact match. An empty string matches every
// version.
func ParseRequirement(raw string) (*semver.Constraints, error) {
	if strings.TrimSpace(raw) == "" {
		raw = AnyVersion
	}
	c, err := semver.NewConstraint(caretDefault(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid version requirement %q: %w", raw, err)
	}
	return c, nil
}

// caretDefault prefixes "^" to every bare version in raw. Wildcards and the
// bounds of hyphen ranges are left alone.
func caretDefault(raw string) string {
	groups := strings.Split(raw, "||")
	for gi, group := range groups {
		parts := strings.Split(group, ",")
		for pi, part := range parts {
			fields := strings.Fields(part)
			for i, f := range fields {
				if !isBareVersion(f) {
					continue
				}
				if i > 0 && (fields[i-1] == "-" || isOperator(fields[i-1])) {
					continue
				}
				if i+1 < len(fields) && fields[i+1] == "-" {
					continue
				}
				fields[i] = "^" + f
			}
			parts[pi] = strings.Join(fields, " ")
		}
		groups[gi] = strings.Join(parts, ", ")
	}
	return strings.Join(groups, " || ")
}

func isBareVersion(f string) bool {
	f = strings.TrimPrefix(f, "v")
	if f == "" || f[0] < '0' || f[0] > '9' {
		return false
	}
	return !strings.ContainsAny(f, "xX*")
}

func isOperator(f string) bool {
	return strings.Trim(f, "<>=!~^") == ""
}

// CoreVersion drops pre-release and build metadata
func CoreVersion(v *semver.Version) *semver.Version {
	return semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
}

// CompareCore compares two versions by major, minor and patch only.
// Returns -1, 0 or 1.
func CompareCore(a, b *semver.Version) int {
	if c := cmp.Compare(a.Major(), b.Major()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Minor(), b.Minor()); c != 0 {
		return c
	}
	return cmp.Compare(a.Patch(), b.Patch())
}

// SortDescending sorts versions in place, latest first, by CompareCore
func SortDescending(versions []*semver.Version) {
	slices.SortStableFunc(versions, func(a, b *semver.Version) int {
		return CompareCore(b, a)
	})
}
