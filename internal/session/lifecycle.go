// Package session owns the session lifecycle: the status machine and
// the three student sets (enrolled, present, absent). Presence and
// absence are mutually exclusive and only meaningful for enrolled
// students; statistics are a pure projection of the sets, computed on
// read and never stored as independent state.
package session

import (
	"errors"
	"fmt"

	"campusattend/internal/model"
)

// ErrInvalidState is returned for illegal lifecycle transitions.
var ErrInvalidState = errors.New("session: invalid state transition")

// Stats is the derived view of a session's sets.
type Stats struct {
	TotalEnrolled  int     `json:"totalEnrolled"`
	TotalPresent   int     `json:"totalPresent"`
	TotalAbsent    int     `json:"totalAbsent"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// ComputeStats projects the three sets into counts and a rate. An empty
// session has rate 0, never a division fault.
func ComputeStats(s *model.Session) Stats {
	st := Stats{
		TotalEnrolled: len(s.Enrolled),
		TotalPresent:  len(s.Present),
		TotalAbsent:   len(s.Absent),
	}
	if st.TotalEnrolled > 0 {
		st.AttendanceRate = float64(st.TotalPresent) / float64(st.TotalEnrolled) * 100
	}
	return st
}

// Enroll adds email to the enrolled set. Idempotent.
func Enroll(s *model.Session, email string) {
	if contains(s.Enrolled, email) {
		return
	}
	s.Enrolled = append(s.Enrolled, email)
}

// MarkPresent moves an enrolled email into the present set and out of
// the absent set. Unknown emails are a no-op; the caller logs them.
func MarkPresent(s *model.Session, email string) bool {
	if !contains(s.Enrolled, email) {
		return false
	}
	s.Absent = remove(s.Absent, email)
	if !contains(s.Present, email) {
		s.Present = append(s.Present, email)
	}
	return true
}

// MarkAbsent is the mirror of MarkPresent.
func MarkAbsent(s *model.Session, email string) bool {
	if !contains(s.Enrolled, email) {
		return false
	}
	s.Present = remove(s.Present, email)
	if !contains(s.Absent, email) {
		s.Absent = append(s.Absent, email)
	}
	return true
}

// Start moves a scheduled session to active.
func Start(s *model.Session) error {
	if s.Status != model.SessionScheduled {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.Status)
	}
	s.Status = model.SessionActive
	return nil
}

// End completes a scheduled or active session. Every enrolled student
// not already present is marked absent here; this is the only place
// absence is inferred rather than recorded.
func End(s *model.Session) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: end from %s", ErrInvalidState, s.Status)
	}
	for _, email := range s.Enrolled {
		if !contains(s.Present, email) {
			MarkAbsent(s, email)
		}
	}
	s.Status = model.SessionCompleted
	return nil
}

// Cancel aborts a scheduled or active session without touching the
// student sets.
func Cancel(s *model.Session) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, s.Status)
	}
	s.Status = model.SessionCancelled
	return nil
}

func contains(set []string, email string) bool {
	for _, e := range set {
		if e == email {
			return true
		}
	}
	return false
}

func remove(set []string, email string) []string {
	for i, e := range set {
		if e == email {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}
