// Package model holds the persisted record types and their document
// codecs. Decoding is deliberately lenient about value shapes because
// documents arrive from different backends (native types from
// Firestore, JSON-decoded values from Postgres); a document missing its
// identity fields decodes to ErrMalformed and is skipped by callers.
package model

import (
	"errors"
	"fmt"
	"time"

	"campusattend/internal/store"
)

// Collection names, disjoint by role for people.
const (
	ColStudents       = "students"
	ColTeachers       = "teachers"
	ColAdmins         = "admins"
	ColCourses        = "courses"
	ColSessions       = "sessions"
	ColAttendance     = "attendance_records"
	ColJustifications = "justifications"
)

// ErrMalformed marks a document that failed to decode. Read paths skip
// and log these rather than failing the request.
var ErrMalformed = errors.New("model: malformed document")

// Role tags an authenticated identity, resolved once at login.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// PeopleCollection maps a role to its collection.
func PeopleCollection(r Role) string {
	switch r {
	case RoleTeacher:
		return ColTeachers
	case RoleAdmin:
		return ColAdmins
	default:
		return ColStudents
	}
}

// Person is a registered student, teacher, or admin. Email is the
// identity; the document id equals the email.
type Person struct {
	Email      string
	Name       string
	Department string
	Field      string
	Year       string
	PhotoURL   string
}

func PersonFromDoc(d store.Document) (Person, error) {
	p := Person{
		Email:      str(d.Data, "email"),
		Name:       str(d.Data, "name"),
		Department: str(d.Data, "department"),
		Field:      str(d.Data, "field"),
		Year:       str(d.Data, "year"),
		PhotoURL:   str(d.Data, "photoUrl"),
	}
	if p.Email == "" {
		p.Email = d.ID
	}
	if p.Email == "" {
		return Person{}, fmt.Errorf("%w: person without email", ErrMalformed)
	}
	return p, nil
}

func (p Person) Doc() map[string]any {
	return map[string]any{
		"email":      p.Email,
		"name":       p.Name,
		"department": p.Department,
		"field":      p.Field,
		"year":       p.Year,
		"photoUrl":   p.PhotoURL,
	}
}

// Schedule is a course's recurring slot.
type Schedule struct {
	DayOfWeek string
	StartTime string
	EndTime   string
	Room      string
	Recurring bool
}

// Course is a teachable offering. TargetYears must be non-empty for a
// published (active) course.
type Course struct {
	ID           string
	Name         string
	TeacherEmail string
	Department   string
	Field        string
	TargetYears  []string
	Active       bool
	Schedule     Schedule
}

func CourseFromDoc(d store.Document) (Course, error) {
	if d.ID == "" {
		return Course{}, fmt.Errorf("%w: course without id", ErrMalformed)
	}
	c := Course{
		ID:           d.ID,
		Name:         str(d.Data, "name"),
		TeacherEmail: str(d.Data, "teacherEmail"),
		Department:   str(d.Data, "department"),
		Field:        str(d.Data, "field"),
		TargetYears:  strSlice(d.Data, "targetYears"),
		Active:       boolean(d.Data, "isActive"),
	}
	if c.Name == "" {
		return Course{}, fmt.Errorf("%w: course %s without name", ErrMalformed, d.ID)
	}
	if sched, ok := d.Data["schedule"].(map[string]any); ok {
		c.Schedule = Schedule{
			DayOfWeek: str(sched, "dayOfWeek"),
			StartTime: str(sched, "startTime"),
			EndTime:   str(sched, "endTime"),
			Room:      str(sched, "room"),
			Recurring: boolean(sched, "recurring"),
		}
	}
	return c, nil
}

func (c Course) Doc() map[string]any {
	return map[string]any{
		"name":         c.Name,
		"teacherEmail": c.TeacherEmail,
		"department":   c.Department,
		"field":        c.Field,
		"targetYears":  anySlice(c.TargetYears),
		"isActive":     c.Active,
		"schedule": map[string]any{
			"dayOfWeek": c.Schedule.DayOfWeek,
			"startTime": c.Schedule.StartTime,
			"endTime":   c.Schedule.EndTime,
			"room":      c.Schedule.Room,
			"recurring": c.Schedule.Recurring,
		},
	}
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session is one occurrence of a course with its own enrollment and
// attendance sets. The sets are the source of truth; any statistics
// written alongside them are a denormalized projection for readers.
type Session struct {
	ID           string
	CourseID     string
	CourseName   string
	TeacherEmail string
	Start        time.Time
	End          time.Time
	Status       SessionStatus
	Department   string
	Field        string
	TargetYears  []string
	Enrolled     []string
	Present      []string
	Absent       []string
}

func SessionFromDoc(d store.Document) (Session, error) {
	if d.ID == "" {
		return Session{}, fmt.Errorf("%w: session without id", ErrMalformed)
	}
	s := Session{
		ID:           d.ID,
		CourseID:     str(d.Data, "courseId"),
		CourseName:   str(d.Data, "courseName"),
		TeacherEmail: str(d.Data, "teacherEmail"),
		Start:        timestamp(d.Data, "start"),
		End:          timestamp(d.Data, "end"),
		Status:       SessionStatus(str(d.Data, "status")),
		Department:   str(d.Data, "department"),
		Field:        str(d.Data, "field"),
		TargetYears:  strSlice(d.Data, "targetYears"),
		Enrolled:     strSlice(d.Data, "enrolled"),
		Present:      strSlice(d.Data, "present"),
		Absent:       strSlice(d.Data, "absent"),
	}
	if s.CourseID == "" {
		return Session{}, fmt.Errorf("%w: session %s without course", ErrMalformed, d.ID)
	}
	switch s.Status {
	case SessionScheduled, SessionActive, SessionCompleted, SessionCancelled:
	default:
		return Session{}, fmt.Errorf("%w: session %s status %q", ErrMalformed, d.ID, s.Status)
	}
	return s, nil
}

func (s Session) Doc() map[string]any {
	return map[string]any{
		"courseId":     s.CourseID,
		"courseName":   s.CourseName,
		"teacherEmail": s.TeacherEmail,
		"start":        s.Start.UTC(),
		"end":          s.End.UTC(),
		"status":       string(s.Status),
		"department":   s.Department,
		"field":        s.Field,
		"targetYears":  anySlice(s.TargetYears),
		"enrolled":     anySlice(s.Enrolled),
		"present":      anySlice(s.Present),
		"absent":       anySlice(s.Absent),
	}
}

// Attendance record statuses. Justified only ever replaces absent.
const (
	StatusPresent   = "present"
	StatusAbsent    = "absent"
	StatusJustified = "justified"
)

// AttendanceRecord is one student's outcome for one session occurrence.
// Confidence is an opaque score from the upstream face matcher.
type AttendanceRecord struct {
	ID           string
	StudentEmail string
	CourseID     string
	CourseName   string
	Timestamp    time.Time
	Status       string
	Confidence   float64
	ManualEntry  bool
}

func AttendanceRecordFromDoc(d store.Document) (AttendanceRecord, error) {
	r := AttendanceRecord{
		ID:           d.ID,
		StudentEmail: str(d.Data, "studentEmail"),
		CourseID:     str(d.Data, "courseId"),
		CourseName:   str(d.Data, "courseName"),
		Timestamp:    timestamp(d.Data, "timestamp"),
		Status:       str(d.Data, "status"),
		Confidence:   number(d.Data, "confidence"),
		ManualEntry:  boolean(d.Data, "isManualEntry"),
	}
	if r.StudentEmail == "" || r.Timestamp.IsZero() {
		return AttendanceRecord{}, fmt.Errorf("%w: attendance record %s", ErrMalformed, d.ID)
	}
	return r, nil
}

func (r AttendanceRecord) Doc() map[string]any {
	return map[string]any{
		"studentEmail":  r.StudentEmail,
		"courseId":      r.CourseID,
		"courseName":    r.CourseName,
		"timestamp":     r.Timestamp.UTC(),
		"status":        r.Status,
		"confidence":    r.Confidence,
		"isManualEntry": r.ManualEntry,
	}
}

// JustificationStatus is the review state of an absence justification.
type JustificationStatus string

const (
	JustificationSubmitted   JustificationStatus = "submitted"
	JustificationUnderReview JustificationStatus = "under_review"
	JustificationApproved    JustificationStatus = "approved"
	JustificationRejected    JustificationStatus = "rejected"
)

// Justification is a student's request to recharacterize an absence.
type Justification struct {
	ID             string
	StudentEmail   string
	CourseID       string
	Reason         string
	Description    string
	Status         JustificationStatus
	Reviewer       string
	DecisionReason string
	SubmittedAt    time.Time
	DecidedAt      time.Time
}

func JustificationFromDoc(d store.Document) (Justification, error) {
	j := Justification{
		ID:             d.ID,
		StudentEmail:   str(d.Data, "studentEmail"),
		CourseID:       str(d.Data, "courseId"),
		Reason:         str(d.Data, "reason"),
		Description:    str(d.Data, "description"),
		Status:         JustificationStatus(str(d.Data, "status")),
		Reviewer:       str(d.Data, "reviewer"),
		DecisionReason: str(d.Data, "decisionReason"),
		SubmittedAt:    timestamp(d.Data, "submittedAt"),
		DecidedAt:      timestamp(d.Data, "decidedAt"),
	}
	if j.StudentEmail == "" || j.CourseID == "" {
		return Justification{}, fmt.Errorf("%w: justification %s", ErrMalformed, d.ID)
	}
	return j, nil
}

func (j Justification) Doc() map[string]any {
	doc := map[string]any{
		"studentEmail":   j.StudentEmail,
		"courseId":       j.CourseID,
		"reason":         j.Reason,
		"description":    j.Description,
		"status":         string(j.Status),
		"reviewer":       j.Reviewer,
		"decisionReason": j.DecisionReason,
		"submittedAt":    j.SubmittedAt.UTC(),
	}
	if !j.DecidedAt.IsZero() {
		doc["decidedAt"] = j.DecidedAt.UTC()
	}
	return doc
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolean(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func number(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func timestamp(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func strSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
