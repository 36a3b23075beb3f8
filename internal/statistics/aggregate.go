// Package statistics turns raw attendance records into rates and
// per-course breakdowns.
package statistics

import (
	"math"
	"sort"
	"strings"

	"campusattend/internal/model"
)

// Stats is the aggregate view of a record set. Rate is present/total in
// percent, rounded to one decimal. Records with an unrecognized status
// count toward Total only, so they lower the rate without inflating any
// bucket.
type Stats struct {
	Total     int     `json:"total"`
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Justified int     `json:"justified"`
	Rate      float64 `json:"rate"`
}

// Aggregate walks the records once and counts by status,
// case-insensitively.
func Aggregate(records []model.AttendanceRecord) Stats {
	var st Stats
	for _, r := range records {
		st.Total++
		switch strings.ToLower(r.Status) {
		case model.StatusPresent:
			st.Present++
		case model.StatusAbsent:
			st.Absent++
		case model.StatusJustified:
			st.Justified++
		}
	}
	st.Rate = rate(st.Present, st.Total)
	return st
}

// AggregateByCourse groups records by course name and aggregates each
// group. A record without a course name cannot be attributed and is
// left out of the grouped view entirely.
func AggregateByCourse(records []model.AttendanceRecord) map[string]Stats {
	groups := make(map[string][]model.AttendanceRecord)
	for _, r := range records {
		if r.CourseName == "" {
			continue
		}
		groups[r.CourseName] = append(groups[r.CourseName], r)
	}
	out := make(map[string]Stats, len(groups))
	for name, recs := range groups {
		out[name] = Aggregate(recs)
	}
	return out
}

// BestWorst returns the course names with the highest and lowest rate.
// Ties go to the first course in name order, so results are stable
// across runs. ok is false for an empty map; callers must treat "no
// courses" separately from any real result.
func BestWorst(byCourse map[string]Stats) (best, worst string, ok bool) {
	if len(byCourse) == 0 {
		return "", "", false
	}
	names := make([]string, 0, len(byCourse))
	for name := range byCourse {
		names = append(names, name)
	}
	sort.Strings(names)

	best, worst = names[0], names[0]
	for _, name := range names[1:] {
		if byCourse[name].Rate > byCourse[best].Rate {
			best = name
		}
		if byCourse[name].Rate < byCourse[worst].Rate {
			worst = name
		}
	}
	return best, worst, true
}

func rate(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*1000) / 10
}
