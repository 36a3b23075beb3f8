// Package eligibility decides whether a person's academic placement
// satisfies a course or session's target criteria.
package eligibility

import "strings"

// Person is the identity side of an eligibility check.
type Person struct {
	Department string
	Field      string
	Year       string
}

// Target is the course/session side: who the offering is aimed at.
type Target struct {
	Department  string
	Field       string
	TargetYears []string
}

// Matches reports whether person is eligible for target: same department,
// same field, and the person's year appears in the target years. Strings
// are compared trimmed, case preserved. An empty field on either side
// never matches; callers that want to skip the field filter must say so
// via MatchesIgnoringField.
func Matches(p Person, t Target) bool {
	if !equalTrimmed(p.Department, t.Department) {
		return false
	}
	if strings.TrimSpace(p.Field) == "" || strings.TrimSpace(t.Field) == "" {
		return false
	}
	if !equalTrimmed(p.Field, t.Field) {
		return false
	}
	return yearIn(p.Year, t.TargetYears)
}

// MatchesIgnoringField is the explicit field-filter bypass used when the
// catalog has no field assigned yet. Department and year still apply.
func MatchesIgnoringField(p Person, t Target) bool {
	return equalTrimmed(p.Department, t.Department) && yearIn(p.Year, t.TargetYears)
}

func yearIn(year string, years []string) bool {
	for _, y := range years {
		if equalTrimmed(year, y) {
			return true
		}
	}
	return false
}

func equalTrimmed(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
