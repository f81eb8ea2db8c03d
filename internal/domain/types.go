package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common types used across domain models

// InitialVersion is the semantic version assigned to new test cases
const InitialVersion = "1.0.0"

// Timestamps provides common time fields
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SetTimestamps sets CreatedAt and UpdatedAt to current time
func (t *Timestamps) SetTimestamps() {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Touch refreshes UpdatedAt
func (t *Timestamps) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// SemVer is a MAJOR.MINOR.PATCH version
type SemVer struct {
	Major, Minor, Patch int
}

// ParseSemVer parses a MAJOR.MINOR.PATCH string
func ParseSemVer(s string) (SemVer, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return SemVer{}, fmt.Errorf("invalid version %q: expected MAJOR.MINOR.PATCH", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SemVer{}, fmt.Errorf("invalid version %q: component %q", s, p)
		}
		nums[i] = n
	}
	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// BumpPatch increments the PATCH component. An unparseable version is
// treated as InitialVersion.
func BumpPatch(version string) string {
	v, err := ParseSemVer(version)
	if err != nil {
		v, _ = ParseSemVer(InitialVersion)
	}
	v.Patch++
	return v.String()
}
