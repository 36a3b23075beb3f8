package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/model"
	"campusattend/internal/store"
)

// Service persists lifecycle operations. It assumes a single active
// session manager (the assigned teacher device); concurrent writers are
// out of scope and last-write-wins.
type Service struct {
	store store.DocStore
}

// NewService creates a session service over the injected store.
func NewService(s store.DocStore) *Service {
	return &Service{store: s}
}

// Get loads and decodes one session.
func (s *Service) Get(ctx context.Context, id string) (model.Session, error) {
	doc, err := s.store.GetByID(ctx, model.ColSessions, id)
	if err != nil {
		return model.Session{}, err
	}
	return model.SessionFromDoc(doc)
}

// Schedule creates a scheduled session from a course, inheriting its
// targeting. A course without target years cannot be scheduled.
func (s *Service) Schedule(ctx context.Context, course model.Course, start, end time.Time) (model.Session, error) {
	if len(course.TargetYears) == 0 {
		return model.Session{}, errors.New("session: course has no target years")
	}
	if !end.After(start) {
		return model.Session{}, errors.New("session: end must be after start")
	}
	sess := model.Session{
		ID:           uuid.NewString(),
		CourseID:     course.ID,
		CourseName:   course.Name,
		TeacherEmail: course.TeacherEmail,
		Start:        start.UTC(),
		End:          end.UTC(),
		Status:       model.SessionScheduled,
		Department:   course.Department,
		Field:        course.Field,
		TargetYears:  append([]string(nil), course.TargetYears...),
	}
	return sess, s.persist(ctx, sess)
}

// Enroll adds a student to the session's enrolled set.
func (s *Service) Enroll(ctx context.Context, sessionID, email string) (model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	Enroll(&sess, email)
	return sess, s.persist(ctx, sess)
}

// MarkPresent records a student as present and writes the attendance
// record for this occurrence. Confidence is the upstream matcher's
// score; manual entries carry 1.0 from the teacher device.
func (s *Service) MarkPresent(ctx context.Context, sessionID, email string, confidence float64, manual bool) (model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if !MarkPresent(&sess, email) {
		log.Printf("mark present: %s not enrolled in session %s, ignoring", email, sessionID)
		return sess, nil
	}
	if err := s.writeRecord(ctx, sess, email, model.StatusPresent, confidence, manual, time.Now().UTC()); err != nil {
		return model.Session{}, err
	}
	return sess, s.persist(ctx, sess)
}

// MarkAbsent records a student as absent.
func (s *Service) MarkAbsent(ctx context.Context, sessionID, email string) (model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if !MarkAbsent(&sess, email) {
		log.Printf("mark absent: %s not enrolled in session %s, ignoring", email, sessionID)
		return sess, nil
	}
	if err := s.writeRecord(ctx, sess, email, model.StatusAbsent, 0, true, time.Now().UTC()); err != nil {
		return model.Session{}, err
	}
	return sess, s.persist(ctx, sess)
}

// Start activates a scheduled session.
func (s *Service) Start(ctx context.Context, sessionID string) (model.Session, error) {
	return s.transition(ctx, sessionID, Start)
}

// End completes a session. Enrolled students without a presence mark
// get an absent attendance record for the occurrence.
func (s *Service) End(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	before := make(map[string]bool, len(sess.Absent))
	for _, email := range sess.Absent {
		before[email] = true
	}
	if err := End(&sess); err != nil {
		return model.Session{}, err
	}
	for _, email := range sess.Absent {
		if before[email] {
			continue
		}
		if err := s.writeRecord(ctx, sess, email, model.StatusAbsent, 0, false, sess.Start); err != nil {
			return model.Session{}, err
		}
	}
	return sess, s.persist(ctx, sess)
}

// Cancel aborts a session.
func (s *Service) Cancel(ctx context.Context, sessionID string) (model.Session, error) {
	return s.transition(ctx, sessionID, Cancel)
}

func (s *Service) transition(ctx context.Context, sessionID string, op func(*model.Session) error) (model.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if err := op(&sess); err != nil {
		return model.Session{}, err
	}
	return sess, s.persist(ctx, sess)
}

// persist writes the session with its statistics projection attached.
// The stored statistics block is a convenience for mobile readers; this
// service never reads it back.
func (s *Service) persist(ctx context.Context, sess model.Session) error {
	doc := sess.Doc()
	st := ComputeStats(&sess)
	doc["statistics"] = map[string]any{
		"totalEnrolled":  st.TotalEnrolled,
		"totalPresent":   st.TotalPresent,
		"totalAbsent":    st.TotalAbsent,
		"attendanceRate": st.AttendanceRate,
	}
	return s.store.Put(ctx, model.ColSessions, sess.ID, doc)
}

// writeRecord upserts the single attendance record for (session,
// student). The deterministic id keeps one record per occurrence no
// matter how often the teacher re-marks.
func (s *Service) writeRecord(ctx context.Context, sess model.Session, email, status string, confidence float64, manual bool, at time.Time) error {
	rec := model.AttendanceRecord{
		ID:           fmt.Sprintf("%s_%s", sess.ID, email),
		StudentEmail: email,
		CourseID:     sess.CourseID,
		CourseName:   sess.CourseName,
		Timestamp:    at,
		Status:       status,
		Confidence:   confidence,
		ManualEntry:  manual,
	}
	return s.store.Put(ctx, model.ColAttendance, rec.ID, rec.Doc())
}
