package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionKind distinguishes the three version request shapes.
type VersionKind int

const (
	VersionExact VersionKind = iota
	VersionLatest
	VersionLocal
)

// Version is an engine version request: "latest", "major.minor.patch", or
// "local:<path>".
type Version struct {
	Kind  VersionKind
	Major uint64
	Minor uint64
	Patch uint64

	// Path is the source checkout for VersionLocal.
	Path string
}

var segmentNames = [3]string{"major", "minor", "patch"}

// ParseVersion parses a version request. Errors name the failing segment.
func ParseVersion(s string) (Version, error) {
	if s == "latest" {
		return Version{Kind: VersionLatest}, nil
	}
	if path, ok := strings.CutPrefix(s, "local:"); ok {
		if path == "" {
			return Version{}, fmt.Errorf("invalid version format: %q: local version needs a path", s)
		}
		return Version{Kind: VersionLocal, Path: path}, nil
	}

	if s == "" {
		return Version{}, fmt.Errorf("invalid version format: %q, expected latest, major.minor.patch or local:<path>", s)
	}
	parts := strings.Split(s, ".")
	switch {
	case len(parts) < len(segmentNames):
		return Version{}, fmt.Errorf("invalid version %q: missing %s segment", s, segmentNames[len(parts)])
	case len(parts) > len(segmentNames):
		return Version{}, fmt.Errorf("invalid version %q: unexpected segment %q after patch", s, parts[3])
	}
	var nums [3]uint64
	for i, name := range segmentNames {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("invalid %s version: %q", name, parts[i])
		}
		nums[i] = n
	}
	return Version{Kind: VersionExact, Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	switch v.Kind {
	case VersionLatest:
		return "latest"
	case VersionLocal:
		return "local:" + v.Path
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
}

// Semver returns the canonical "vMAJOR.MINOR.PATCH" form of an exact version,
// or "" for the other kinds.
func (v Version) Semver() string {
	if v.Kind != VersionExact {
		return ""
	}
	return "v" + v.String()
}
