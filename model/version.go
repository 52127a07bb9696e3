package model

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion parses a semantic version string into its components.
func ParseVersion(v string) (major, minor, patch int, err error) {
	matches := versionRegex.FindStringSubmatch(v)
	if len(matches) != 4 {
		return 0, 0, 0, fmt.Errorf("invalid version format: %s (expected major.minor.patch)", v)
	}
	major, _ = strconv.Atoi(matches[1])
	minor, _ = strconv.Atoi(matches[2])
	patch, _ = strconv.Atoi(matches[3])
	return major, minor, patch, nil
}

// CompareVersions returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2.
func CompareVersions(v1, v2 string) (int, error) {
	a1, i1, p1, err := ParseVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}
	a2, i2, p2, err := ParseVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	for _, pair := range [][2]int{{a1, a2}, {i1, i2}, {p1, p2}} {
		if pair[0] < pair[1] {
			return -1, nil
		}
		if pair[0] > pair[1] {
			return 1, nil
		}
	}
	return 0, nil
}

// IncrementVersion bumps a version by change type "major", "minor" or
// "patch".
func IncrementVersion(current, changeType string) (string, error) {
	major, minor, patch, err := ParseVersion(current)
	if err != nil {
		return "", fmt.Errorf("invalid current version: %w", err)
	}
	switch changeType {
	case "major":
		return fmt.Sprintf("%d.0.0", major+1), nil
	case "minor":
		return fmt.Sprintf("%d.%d.0", major, minor+1), nil
	case "patch":
		return fmt.Sprintf("%d.%d.%d", major, minor, patch+1), nil
	default:
		return "", fmt.Errorf("invalid change type: %s (must be 'major', 'minor', or 'patch')", changeType)
	}
}

// SortVersions returns the versions sorted descending (newest first).
func SortVersions(versions []string) ([]string, error) {
	for _, v := range versions {
		if _, _, _, err := ParseVersion(v); err != nil {
			return nil, fmt.Errorf("invalid version in list: %s: %w", v, err)
		}
	}

	sorted := make([]string, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool {
		result, _ := CompareVersions(sorted[i], sorted[j])
		return result > 0
	})
	return sorted, nil
}
